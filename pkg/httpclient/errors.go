package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// downstreamError matches the error envelope written by pkg/httputil.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and converts it
// to an AppError. 404, 400 and 422 keep their meaning; everything else is an
// integration failure of the named collaborator.
func ParseResponseError(resp *http.Response, collaborator string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return apperrors.Integration(collaborator, fmt.Errorf("status %d, read body: %w", resp.StatusCode, err))
	}

	message := string(body)
	reason := ""
	var env downstreamError
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		message = env.Error.Message
		reason = env.Error.Reason
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperrors.NotFound(collaborator+" resource", message)
	case http.StatusBadRequest:
		return apperrors.InvalidInput(fmt.Sprintf("%s: %s", collaborator, message))
	case http.StatusUnprocessableEntity:
		if reason == "" {
			reason = collaborator + "_rejected"
		}
		return apperrors.BusinessRule(reason, message)
	default:
		return apperrors.Integration(collaborator, fmt.Errorf("status %d: %s", resp.StatusCode, message))
	}
}
