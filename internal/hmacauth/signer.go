package hmacauth

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Signer stamps outgoing requests with the headers Verifier checks.
type Signer struct {
	Secret string
	Now    func() time.Time
}

// Sign sets the timestamp and signature headers on req. A Signer without a
// secret leaves the request untouched.
func (s *Signer) Sign(req *http.Request) error {
	if s == nil || s.Secret == "" {
		return nil
	}
	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return err
		}
		_ = req.Body.Close()
		body = b
		req.Body = io.NopCloser(bytes.NewReader(body))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	req.Header.Set(headerTimestamp, ts)
	req.Header.Set(headerSignature, computeSignature(s.Secret, ts, body))
	return nil
}
