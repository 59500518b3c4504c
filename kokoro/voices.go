package kokoro

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Dherick07/dexterous/tts"
)

const voicesPath = "/v1/audio/voices"

// Voices returns the identifiers of every voice the server can
// synthesize with, in the server's order.
func (c *Client) Voices(ctx context.Context) ([]string, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, voicesPath, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, cerr
		}
		return nil, &tts.TransportError{Op: "list voices", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseError(resp)
	}

	var decoded struct {
		Voices []string `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode voice list: %w", err)
	}
	return decoded.Voices, nil
}
