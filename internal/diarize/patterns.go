package diarize

import "regexp"

// 西班牙语临床对话的角色识别模式。
// 前三个 promotor/paciente 模式视为"明确"模式，命中时给置信度加成。

var promotorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`buenos días|buenas tardes|hola`),
	regexp.MustCompile(`¿cómo se siente|¿cómo está|¿qué le pasa`),
	regexp.MustCompile(`vamos a revisar|le voy a|necesito que`),
	regexp.MustCompile(`¿desde cuándo|¿cuánto tiempo|¿con qué frecuencia`),
	regexp.MustCompile(`voy a recetarle|le recomiendo|debe tomar`),
	regexp.MustCompile(`¿tiene alguna alergia|¿toma algún medicamento`),
	regexp.MustCompile(`doctor|doctora|médico|enfermero|enfermera`),
}

var pacientePatterns = []*regexp.Regexp{
	regexp.MustCompile(`me duele|me siento|tengo dolor`),
	regexp.MustCompile(`desde hace|hace como|hace unos`),
	regexp.MustCompile(`no puedo|no me deja|me impide`),
	regexp.MustCompile(`sí doctor|no doctor|gracias doctor`),
	regexp.MustCompile(`tomo|estoy tomando|me tomo`),
	regexp.MustCompile(`mi familia|mi trabajo|en casa`),
}

// 医疗专业词汇 (典型的 promotor 用语)
var medicalProfessionalKeywords = []string{
	"diagnóstico", "tratamiento", "medicamento", "receta",
	"examen", "análisis", "presión", "temperatura",
	"auscultar", "palpar", "revisar", "prescribir", "recetar",
}

// 病人侧词汇
var patientKeywords = []string{
	"dolor", "malestar", "molestia", "siento",
	"familia", "trabajo", "casa", "dormir", "comer",
}

// 无明显说话人标记时，按这些模式切分纯文本转写
var splitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?\s+[A-ZÁÉÍÓÚ]`),
	regexp.MustCompile(`[.!]\s+¿`),
	regexp.MustCompile(`\.\s+[A-ZÁÉÍÓÚ][a-z]+\s+(días?|tardes?|noches?)`),
	regexp.MustCompile(`\.\s+[A-ZÁÉÍÓÚ][a-z]+\s+(doctor|doctora)`),
	regexp.MustCompile(`\.\s+[A-ZÁÉÍÓÚ][a-z]+\s+(me|mi|yo)`),
	regexp.MustCompile(`\.\s+[A-ZÁÉÍÓÚ][a-z]+\s+(le voy|vamos|necesito)`),
}
