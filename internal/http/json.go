package httpx

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"

	apperrors "github.com/target/talentgate/internal/errors"
)

// maxBodyBytes bounds JSON and form request bodies.
const maxBodyBytes = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// DecodeBody accepts either a JSON body or an HTML form post. Form fields are mapped onto
// dst's JSON field names, so shell pages can post plain forms to the same endpoints.
func DecodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "application/x-www-form-urlencoded" && mt != "multipart/form-data" {
		return DecodeJSON(w, r, dst)
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	parse := r.ParseForm
	if mt == "multipart/form-data" {
		parse = func() error { return r.ParseMultipartForm(maxBodyBytes) }
	}
	if err := parse(); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	fields := make(map[string]any, len(r.PostForm))
	for k, vs := range r.PostForm {
		if k == DefaultCSRFFormField || len(vs) == 0 {
			continue
		}
		fields[k] = vs[0]
	}
	raw, err := json.Marshal(fields)
	if err == nil {
		err = json.Unmarshal(raw, dst)
	}
	if err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_form", Err: err})
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// errorBody is the JSON shape of an application error.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// WriteAppError maps err to a status code and writes a JSON body whose message is safe to
// show the user. Errors without a user message get the generic text for their status.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	status := statusForCode(code)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteJSON(w, status, errorBody{
		Error:   string(code),
		Message: apperrors.UserMessage(err, genericMessage(status)),
		Field:   apperrors.GetField(err),
	})
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUpstream:
		return http.StatusBadGateway
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func genericMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Please sign in to continue."
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return "The service is temporarily unavailable. Please try again."
	case http.StatusInternalServerError:
		return "Something went wrong. Please try again."
	default:
		return http.StatusText(status)
	}
}
