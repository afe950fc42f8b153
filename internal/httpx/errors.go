package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

const msgUnavailable = "temporarily unavailable, try again later"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindBusiness:
		return http.StatusConflict
	case domain.KindInvalid:
		if errors.Is(err, domain.ErrInvalidInput) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError hides infrastructure details from the client; they only go to
// the log.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable {
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, code, map[string]string{"error": msgUnavailable})
		return
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
