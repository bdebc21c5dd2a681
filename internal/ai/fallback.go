package ai

import (
	"errors"
	"net/http"

	"github.com/kardiahealth/kardia/internal/reply"
)

// FallbackCategory is the bucket an unrecovered pipeline error falls into
// when choosing a user-presentable reply.
type FallbackCategory string

const (
	FallbackConnectivity FallbackCategory = "connectivity"
	FallbackQuota        FallbackCategory = "quota"
	FallbackMalformed    FallbackCategory = "malformed"
	FallbackUnknown      FallbackCategory = "unknown"
)

var fallbackMessages = map[FallbackCategory]string{
	FallbackConnectivity: "Maaf, koneksi ke layanan AI sedang tidak stabil. Silakan coba lagi dalam beberapa saat.",
	FallbackQuota:        "Layanan AI sedang mengalami beban tinggi. Silakan coba lagi nanti.",
	FallbackMalformed:    "Terjadi kesalahan dalam memproses respons AI. Tim teknis telah diberi tahu.",
	FallbackUnknown:      "Maaf, saya mengalami sedikit kendala teknis. Silakan coba lagi atau hubungi dukungan jika masalah berlanjut.",
}

const fallbackAlternative = "Sebagai alternatif, Anda dapat mencoba mengajukan pertanyaan yang lebih sederhana atau menghubungi dokter langsung untuk konsultasi kesehatan."

// ClassifyFallback inspects an error and picks a fallback category. Typed
// errors are matched first; string inspection is the last resort for errors
// raised outside this package.
func ClassifyFallback(err error) FallbackCategory {
	var tf *TransportFailure
	if errors.As(err, &tf) {
		switch {
		case tf.Kind == TransportConnection || tf.Kind == TransportTimeout:
			return FallbackConnectivity
		case tf.Status == http.StatusTooManyRequests:
			return FallbackQuota
		case containsAny(tf.Error(), "quota", "rate limit", "resource_exhausted"):
			return FallbackQuota
		}
		return FallbackUnknown
	}

	var mr *MalformedResponse
	var us *UnrecognizedResponseShape
	var ic *InvalidComponent
	if errors.As(err, &mr) || errors.As(err, &us) || errors.As(err, &ic) {
		return FallbackMalformed
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "timeout", "connection", "deadline"):
		return FallbackConnectivity
	case containsAny(msg, "quota", "rate limit", "limit"):
		return FallbackQuota
	case containsAny(msg, "json", "parse"):
		return FallbackMalformed
	}
	return FallbackUnknown
}

// FallbackReply returns the fixed, safe reply for a category: one apology
// paragraph and one paragraph suggesting an alternative action. It is
// persisted as a regular model turn so history stays well-formed.
func FallbackReply(cat FallbackCategory) reply.Reply {
	msg, ok := fallbackMessages[cat]
	if !ok {
		msg = fallbackMessages[FallbackUnknown]
	}
	return reply.Reply{Components: []reply.Component{
		reply.Paragraph(msg),
		reply.Paragraph(fallbackAlternative),
	}}
}
