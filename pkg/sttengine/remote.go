package sttengine

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RemoteResolver performs a best-effort reachability check against the
// remote model host before a SourceRemote is handed to the backend for
// download. Its transport honors the standard proxy environment
// (HTTPS_PROXY/HTTP_PROXY and their lowercase variants) via
// http.ProxyFromEnvironment. It is advisory only — the download itself is
// the backend's concern; Facade uses a failed check only to prefer a
// bundled fallback sooner, never to block discovery outright.
type RemoteResolver struct {
	client  *http.Client
	baseURL string
}

// NewRemoteResolver builds a resolver pointed at the Hugging Face Hub,
// where faster-whisper model snapshots are published.
func NewRemoteResolver() *RemoteResolver {
	return &RemoteResolver{
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
		baseURL: "https://huggingface.co",
	}
}

// Reachable reports whether the remote identifier's hosting endpoint
// responds, without downloading the model itself. Any transport failure
// (including a proxy misconfiguration) is reported as unreachable rather
// than propagated — this check is never allowed to turn into a fatal error.
func (r *RemoteResolver) Reachable(ctx context.Context, remoteID string) bool {
	url := fmt.Sprintf("%s/%s", r.baseURL, remoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}
