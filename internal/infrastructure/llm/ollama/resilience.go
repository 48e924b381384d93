package ollama

import (
	"errors"
	"net/http"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
)

// classifyOllamaError treats a missing model as a configuration fault that no
// retry can fix.
func classifyOllamaError(err error) resilience.ErrorClassification {
	if isModelMissing(err) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	return resilience.ClassifyHTTPError(err)
}

func wrapOllamaError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isModelMissing(err) {
		return domain.WrapError(domain.ErrUnavailable, operation, err)
	}
	return resilience.WrapTemporary(operation, err, classifyOllamaError)
}

func isModelMissing(err error) bool {
	var statusErr *resilience.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}
