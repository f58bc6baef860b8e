package sink

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	errNilReport = errors.New("sink: nil run report")
	errNilLogger = errors.New("sink: nil logger")
)

// statusError is a non-2xx answer from an HTTP endpoint.
type statusError struct {
	sink string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s sink: endpoint answered %d %s", e.sink, e.code, http.StatusText(e.code))
}

// temporary reports whether the same request may succeed later. Other
// client errors mean the payload or credentials are wrong and are not
// retried.
func (e *statusError) temporary() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests || e.code == http.StatusRequestTimeout
}

// permanent reports whether err must not be retried.
func permanent(err error) bool {
	var se *statusError
	return errors.As(err, &se) && !se.temporary()
}
