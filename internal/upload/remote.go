package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// requestTimeout bounds a single batch upload so a stalled remote
// can't wedge the worker loop past the next tick.
const requestTimeout = 10 * time.Second

// wireRead is the upload payload shape for a single read. Field
// names mirror the reader-facing wire format the control protocol
// already uses, not the storage row.
type wireRead struct {
	ID                 int64  `json:"id"`
	Chip               string `json:"chip"`
	Seconds            uint64 `json:"seconds"`
	Milliseconds       uint32 `json:"milliseconds"`
	ReaderSeconds      uint64 `json:"reader_seconds"`
	ReaderMilliseconds uint32 `json:"reader_milliseconds"`
	Antenna            uint16 `json:"antenna"`
	Reader             string `json:"reader"`
	RSSI               string `json:"rssi"`
}

type uploadRequest struct {
	Reads []wireRead `json:"reads"`
}

type uploadResponse struct {
	Count int `json:"count"`
}

// HTTPRemote is the upload.Remote implementation used outside tests:
// a plain net/http client POSTing a JSON batch to a Chronokeep
// remote-results API (spec §4.G, §9; the endpoint shape and
// Authorization convention follow network/api.rs's {uri, token}
// fields, chunked NUMBER_READS_PER_UPLOAD-at-a-time by the caller).
type HTTPRemote struct {
	client *http.Client
}

func NewHTTPRemote() *HTTPRemote {
	return &HTTPRemote{
		client: &http.Client{Timeout: requestTimeout},
	}
}

// UploadReads posts one batch to api.URI + "api/reads/add". A
// non-2xx status or a transport error is treated as a failure: the
// caller leaves the batch's uploaded flag untouched so it retries on
// the next tick. Any 2xx response is a success, whatever count the
// remote reports in its body (spec §8 property 7).
func (h *HTTPRemote) UploadReads(ctx context.Context, api model.RemoteAPI, reads []model.Read) error {
	if len(reads) == 0 {
		return nil
	}
	body := uploadRequest{Reads: make([]wireRead, len(reads))}
	for i, r := range reads {
		body.Reads[i] = wireRead{
			ID: r.ID, Chip: r.Identifier,
			Seconds: r.Seconds, Milliseconds: r.Milliseconds,
			ReaderSeconds: r.ReaderSeconds, ReaderMilliseconds: r.ReaderMilliseconds,
			Antenna: r.Antenna, Reader: r.Reader, RSSI: r.RSSI,
		}
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(&body); err != nil {
		return fmt.Errorf("upload: encoding request: %w", err)
	}

	endpoint := api.URI + "api/reads/add"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, buf)
	if err != nil {
		return fmt.Errorf("upload: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if api.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", api.Token))
	}

	res, err := h.client.Do(req)
	if err != nil {
		log.Errorf("upload: request to %s failed: %v", api.Name, err)
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("upload: %q: HTTP status %s", api.Name, res.Status)
	}
	return nil
}
