package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/plume-ai/backend/pkg/logger"
)

// GrammarClient checks French text against a LanguageTool-style service.
// The remote HTTP form is preferred; on remote failure it shells out to a
// local process whose diagnostic output goes to the null device.
type GrammarClient struct {
	remoteURL string
	localCmd  string
	language  string
	client    *http.Client
}

func NewGrammarClient(remoteURL, localCmd, language string, timeout time.Duration) *GrammarClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if language == "" {
		language = "fr"
	}
	return &GrammarClient{
		remoteURL: remoteURL,
		localCmd:  localCmd,
		language:  language,
		client:    &http.Client{Timeout: timeout},
	}
}

func (c *GrammarClient) Probe(ctx context.Context) error {
	_, err := c.Check(ctx, "Bonjour.")
	return err
}

type ltMatch struct {
	Message      string `json:"message"`
	Offset       int    `json:"offset"`
	Length       int    `json:"length"`
	Replacements []struct {
		Value string `json:"value"`
	} `json:"replacements"`
	Rule struct {
		ID string `json:"id"`
	} `json:"rule"`
}

type ltResponse struct {
	Matches []ltMatch `json:"matches"`
}

// Check returns the corrected text and the list of applied corrections.
func (c *GrammarClient) Check(ctx context.Context, text string) (*GrammarResult, error) {
	result, remoteErr := c.checkRemote(ctx, text)
	if remoteErr == nil {
		return result, nil
	}

	logger.Warn("remote grammar check failed, falling back to local process",
		zap.Error(remoteErr))

	result, localErr := c.checkLocal(ctx, text)
	if localErr != nil {
		return nil, unavailable(IDGrammar, fmt.Errorf("remote: %v; local: %v", remoteErr, localErr))
	}
	return result, nil
}

func (c *GrammarClient) checkRemote(ctx context.Context, text string) (*GrammarResult, error) {
	form := url.Values{}
	form.Set("text", text)
	form.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.remoteURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grammar check returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed ltResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode grammar response: %w", err)
	}

	return applyMatches(text, parsed.Matches), nil
}

// checkLocal runs the local checker binary. Stderr is redirected to the null
// device so Java diagnostics never pollute the service output.
func (c *GrammarClient) checkLocal(ctx context.Context, text string) (*GrammarResult, error) {
	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	defer devNull.Close()

	cmd := exec.CommandContext(ctx, c.localCmd, "--json", "--language", c.language, "-")
	cmd.Stdin = strings.NewReader(text)
	cmd.Stderr = devNull

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("local grammar process failed: %w", err)
	}

	var parsed ltResponse
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode local grammar output: %w", err)
	}

	return applyMatches(text, parsed.Matches), nil
}

// applyMatches applies each match's first replacement, back to front so the
// recorded offsets stay valid.
func applyMatches(text string, matches []ltMatch) *GrammarResult {
	result := &GrammarResult{Corrected: text}

	ordered := make([]ltMatch, 0, len(matches))
	for _, m := range matches {
		if len(m.Replacements) == 0 || m.Offset < 0 || m.Offset+m.Length > len(text) {
			continue
		}
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Offset > ordered[j].Offset })

	corrected := text
	for _, m := range ordered {
		original := corrected[m.Offset : m.Offset+m.Length]
		replacement := m.Replacements[0].Value
		corrected = corrected[:m.Offset] + replacement + corrected[m.Offset+m.Length:]

		result.Corrections = append(result.Corrections, Correction{
			Original:    original,
			Corrected:   replacement,
			Explanation: m.Message,
			RuleID:      m.Rule.ID,
		})
	}

	// Corrections were collected back to front; present them in text order.
	for i, j := 0, len(result.Corrections)-1; i < j; i, j = i+1, j-1 {
		result.Corrections[i], result.Corrections[j] = result.Corrections[j], result.Corrections[i]
	}

	result.Corrected = corrected
	return result
}
