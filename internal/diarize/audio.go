package diarize

import (
	"encoding/binary"
	"errors"
	"math"
)

// wavAudio PCM 解码结果 (单声道 float64)
type wavAudio struct {
	samples    []float64
	sampleRate int
}

var errNotWav = errors.New("no es un archivo WAV PCM soportado")

// decodeWav 解析 RIFF/WAVE PCM16。其他格式 (mp3 等) 返回 errNotWav，
// 调用方退回纯文本分离。
func decodeWav(data []byte) (*wavAudio, error) {
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errNotWav
	}

	var sampleRate, numChannels, bitsPerSample int
	var pcm []byte

	// 遍历 chunk 找 fmt 和 data
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errNotWav
			}
			audioFormat := int(binary.LittleEndian.Uint16(data[body : body+2]))
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if audioFormat != 1 || bitsPerSample != 16 {
				return nil, errNotWav
			}
		case "data":
			pcm = data[body : body+chunkSize]
		}

		pos = body + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunk 按 2 字节对齐
		}
	}

	if sampleRate == 0 || numChannels == 0 || len(pcm) == 0 {
		return nil, errNotWav
	}

	frameBytes := 2 * numChannels
	n := len(pcm) / frameBytes
	samples := make([]float64, n)
	for i := 0; i < n; i++ {
		// 多声道取平均混成单声道
		var sum float64
		for ch := 0; ch < numChannels; ch++ {
			off := i*frameBytes + ch*2
			sum += float64(int16(binary.LittleEndian.Uint16(pcm[off : off+2])))
		}
		samples[i] = sum / float64(numChannels) / 32768.0
	}

	return &wavAudio{samples: samples, sampleRate: sampleRate}, nil
}

// slice 按秒取子区间
func (w *wavAudio) slice(startS, endS float64) []float64 {
	start := int(startS * float64(w.sampleRate))
	end := int(endS * float64(w.sampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(w.samples) {
		end = len(w.samples)
	}
	if start >= end {
		return nil
	}
	return w.samples[start:end]
}

// extractFeatures 6 维特征: pitch mean/std/range, RMS, centroide espectral, ZCR。
// 片段不足 100ms 时返回零向量。
func extractFeatures(segment []float64, sr int) []float64 {
	if len(segment) < sr/10 {
		return make([]float64, 6)
	}

	pitchMean, pitchStd, pitchRange := pitchStats(segment, sr)
	rms := rmsEnergy(segment)
	centroid := spectralCentroid(segment, sr)
	zcr := zeroCrossingRate(segment)

	return []float64{pitchMean, pitchStd, pitchRange, rms, centroid, zcr}
}

// pitchStats 帧级自相关基频估计 (50–400 Hz)，30ms 帧 / 15ms 步进
func pitchStats(segment []float64, sr int) (mean, std, rng float64) {
	frameLen := sr * 30 / 1000
	hop := frameLen / 2
	minLag := sr / 400
	maxLag := sr / 50

	var pitches []float64
	for start := 0; start+frameLen <= len(segment); start += hop {
		frame := segment[start : start+frameLen]
		if p := framePitch(frame, sr, minLag, maxLag); p > 0 {
			pitches = append(pitches, p)
		}
	}

	if len(pitches) == 0 {
		// 默认值: 人声中位数附近，不至于让归一化爆掉
		return 150, 20, 0
	}

	var sum float64
	minP, maxP := pitches[0], pitches[0]
	for _, p := range pitches {
		sum += p
		if p < minP {
			minP = p
		}
		if p > maxP {
			maxP = p
		}
	}
	mean = sum / float64(len(pitches))

	var varSum float64
	for _, p := range pitches {
		varSum += (p - mean) * (p - mean)
	}
	std = math.Sqrt(varSum / float64(len(pitches)))
	rng = maxP - minP
	return mean, std, rng
}

func framePitch(frame []float64, sr, minLag, maxLag int) float64 {
	if maxLag >= len(frame) {
		maxLag = len(frame) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	if energy == 0 {
		return 0
	}

	bestLag, bestCorr := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(frame); i++ {
			corr += frame[i] * frame[i+lag]
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestCorr < 0.3 || bestLag == 0 {
		return 0 // 无声或噪音帧
	}
	return float64(sr) / float64(bestLag)
}

func rmsEnergy(segment []float64) float64 {
	var sum float64
	for _, s := range segment {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(segment)))
}

// spectralCentroid 段中心 1024 点窗口上的朴素 DFT 质心
func spectralCentroid(segment []float64, sr int) float64 {
	const winLen = 1024
	if len(segment) < winLen {
		return 0
	}
	start := (len(segment) - winLen) / 2
	window := segment[start : start+winLen]

	var weighted, total float64
	for k := 1; k < winLen/2; k++ {
		var re, im float64
		for n := 0; n < winLen; n++ {
			angle := -2 * math.Pi * float64(k) * float64(n) / float64(winLen)
			re += window[n] * math.Cos(angle)
			im += window[n] * math.Sin(angle)
		}
		mag := math.Sqrt(re*re + im*im)
		freq := float64(k) * float64(sr) / float64(winLen)
		weighted += freq * mag
		total += mag
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func zeroCrossingRate(segment []float64) float64 {
	if len(segment) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(segment); i++ {
		if (segment[i-1] >= 0) != (segment[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(segment)-1)
}

// normalizeFeatures 跨整段录音做 z-score 归一化
func normalizeFeatures(features [][]float64) [][]float64 {
	if len(features) == 0 {
		return features
	}
	dims := len(features[0])
	means := make([]float64, dims)
	stds := make([]float64, dims)

	for d := 0; d < dims; d++ {
		var sum float64
		for _, f := range features {
			sum += f[d]
		}
		means[d] = sum / float64(len(features))
		var varSum float64
		for _, f := range features {
			varSum += (f[d] - means[d]) * (f[d] - means[d])
		}
		stds[d] = math.Sqrt(varSum / float64(len(features)))
		if stds[d] == 0 {
			stds[d] = 1
		}
	}

	out := make([][]float64, len(features))
	for i, f := range features {
		norm := make([]float64, dims)
		for d := 0; d < dims; d++ {
			norm[d] = (f[d] - means[d]) / stds[d]
		}
		out[i] = norm
	}
	return out
}
