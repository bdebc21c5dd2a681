package ai

import (
	"fmt"

	"google.golang.org/genai"
)

// MaxPromptChars caps the total character size of a built prompt. When the
// cap is exceeded, history turns are dropped oldest first until it fits.
const MaxPromptChars = 30000

// Turn is one prior exchange in the conversation, already reduced to plain
// text by the context assembler.
type Turn struct {
	Role string // "user" or "model"
	Text string
}

// Prompt is a fully assembled model request: a system instruction carrying
// the persona and the user's context, plus the conversation turns.
type Prompt struct {
	System   *genai.Content
	Contents []*genai.Content
}

const constitution = `# PERAN DAN PERSONA
Anda adalah 'Kardia', asisten data kesehatan personal. Anda membantu pengguna memahami data kesehatan mereka sendiri dan memberikan edukasi preventif. Anda BUKAN seorang dokter.
Persona Anda profesional yang hangat, sabar, dan empatik. Gunakan bahasa yang tenang dan mudah dimengerti; terjemahkan istilah medis menjadi kalimat sederhana.
BAHASA JAWABAN WAJIB: %s. Meskipun pengguna memakai bahasa lain, tetap jawab dalam bahasa tersebut.

# ATURAN UTAMA
1. Jawaban HARUS berakar pada konteks yang diberikan (profil, riwayat analisis risiko, riwayat percakapan).
2. Personalisasi jawaban dengan kondisi spesifik pengguna; sebut namanya sesekali.
3. Berikan saran langkah kecil yang dapat ditindaklanjuti.
4. Untuk saran yang menyentuh ranah medis, arahkan pengguna kembali ke dokter.

# BATASAN TEGAS
1. JANGAN mendiagnosis.
2. JANGAN meresepkan obat, merek, atau dosis.
3. Jika pengguna menyebut gejala akut yang mengancam jiwa, hentikan analisis dan berikan instruksi darurat.
4. JANGAN memberi jaminan absolut atau mengambil informasi dari luar konteks.

# STRUKTUR OUTPUT JSON (WAJIB)
Hasilkan HANYA JSON valid dengan struktur berikut, tanpa teks lain:
{
  "reply_components": [
    {
      "kind": "string (paragraph/header/list/quote)",
      "content": "string, jika kind paragraph/header/quote",
      "items": ["string", "string"]
    }
  ]
}`

// BuildPrompt assembles the chat request. It is deterministic and
// side-effect-free: identical inputs always produce an identical prompt.
func BuildPrompt(language, userContext string, history []Turn, newMessage string) *Prompt {
	if language == "" {
		language = "Indonesia"
	}

	system := fmt.Sprintf(constitution, language) +
		"\n\n# KONTEKS LENGKAP PENGGUNA SAAT INI\n" + userContext

	total := len(system) + len(newMessage)
	for _, t := range history {
		total += len(t.Text)
	}
	for total > MaxPromptChars && len(history) > 0 {
		total -= len(history[0].Text)
		history = history[1:]
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		contents = append(contents, genai.NewContentFromText(t.Text, genai.Role(t.Role)))
	}
	contents = append(contents, genai.NewContentFromText(newMessage, genai.RoleUser))

	return &Prompt{
		System:   genai.NewContentFromText(system, genai.RoleUser),
		Contents: contents,
	}
}

const reportInstruction = `# TUGAS
Anda adalah 'Kardia', asisten data kesehatan personal. Berdasarkan profil pengguna dan hasil analisis risiko kardiovaskular di bawah, susun laporan personalisasi yang menceritakan kisah di balik data, menyoroti kekuatan pengguna, dan memberikan peta jalan aksi preventif.
BAHASA JAWABAN WAJIB: %s.
Anda BUKAN dokter: jangan mendiagnosis, jangan meresepkan obat, akhiri dengan ajakan berkonsultasi ke dokter.

# STRUKTUR OUTPUT JSON (WAJIB)
Hasilkan HANYA JSON valid dengan struktur berikut, tanpa teks lain:
{
  "reply_components": [
    {
      "kind": "string (paragraph/header/list/quote)",
      "content": "string, jika kind paragraph/header/quote",
      "items": ["string", "string"]
    }
  ]
}`

// BuildReportPrompt assembles the slow-path request that turns a finished
// risk assessment into a full personalized report.
func BuildReportPrompt(language, userContext string, riskPercentage float64, riskCategory string) *Prompt {
	if language == "" {
		language = "Indonesia"
	}

	system := fmt.Sprintf(reportInstruction, language) +
		"\n\n# KONTEKS PENGGUNA\n" + userContext

	ask := fmt.Sprintf(
		"Hasil analisis terbaru: persentase risiko %.1f%%, kategori %q. Susun laporan personalisasi lengkap.",
		riskPercentage, riskCategory,
	)

	return &Prompt{
		System:   genai.NewContentFromText(system, genai.RoleUser),
		Contents: []*genai.Content{genai.NewContentFromText(ask, genai.RoleUser)},
	}
}
