package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/programme-lv/anytime/httpjson"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submsrvc"
)

// maxSubmitBodyBytes leaves room for the longest answer in any encoding.
const maxSubmitBodyBytes = 64 << 10

func (httpserver *HttpServer) createSubmission(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	request, err := decodeSubmitRequest(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpjson.WriteErrorJson(w, "request body too large",
				http.StatusRequestEntityTooLarge, "request_too_large")
			return
		}
		httpjson.WriteErrorJson(w, "could not read request body",
			http.StatusBadRequest, "bad_request")
		return
	}

	subm, err := httpserver.submSrvc.CreateSubm(r.Context(), submsrvc.CreateSubmParams{
		Name:   request.Name,
		Email:  request.Email,
		Answer: request.Answer,
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}
	httpserver.invalidateCount()

	httpjson.WriteJson(w, http.StatusOK, submitResponse{
		Success: true,
		Message: fmt.Sprintf("Submission recorded successfully using %s!",
			httpserver.submSrvc.StorageMethod()),
		SubmissionID: subm.ID,
	})
}

// decodeSubmitRequest accepts a JSON body whatever its content type, then
// url-encoded and multipart forms. Anything else decodes to an empty
// request, which fails validation.
func decodeSubmitRequest(w http.ResponseWriter, r *http.Request) (submitRequest, error) {
	var request submitRequest

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes))
	if err != nil {
		return request, err
	}
	if err := json.Unmarshal(body, &request); err == nil {
		logger.FromContext(r.Context()).Debug("decoded json submission")
		return request, nil
	}
	request = submitRequest{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return request, nil
		}
		return formRequest(values), nil
	case "multipart/form-data":
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := r.ParseMultipartForm(maxSubmitBodyBytes); err != nil {
			return request, nil
		}
		return formRequest(r.MultipartForm.Value), nil
	}
	return request, nil
}

func formRequest(values url.Values) submitRequest {
	return submitRequest{
		Name:      values.Get("name"),
		Email:     values.Get("email"),
		Answer:    values.Get("answer"),
		Timestamp: values.Get("timestamp"),
	}
}
