// Package rest is a thin Jira Cloud REST client implementing
// tracker.Tracker. Requests carry an OAuth2 bearer token.
package rest

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/BhuwanBhaskar/jira-cloud-for-sketch/internal/tracker"
)

const issueFields = "summary,description,status,issuetype,attachment"

// BaseURLFunc resolves the site URL on each request, so a site chosen in
// the Connect panel takes effect without a restart.
type BaseURLFunc func() (string, error)

type Client struct {
	baseURL BaseURLFunc
	http    *http.Client
	log     zerolog.Logger
}

// New builds a client whose requests are authorized by ts.
func New(baseURL BaseURLFunc, ts oauth2.TokenSource, timeout time.Duration, log zerolog.Logger) *Client {
	hc := &http.Client{}
	if ts != nil {
		hc = oauth2.NewClient(context.Background(), ts)
	}
	hc.Timeout = timeout
	return &Client{baseURL: baseURL, http: hc, log: log}
}

// StaticBaseURL is a BaseURLFunc for a fixed site.
func StaticBaseURL(u string) BaseURLFunc {
	return func() (string, error) {
		if u == "" {
			return "", fmt.Errorf("tracker base url not set")
		}
		return u, nil
	}
}

type apiError struct {
	Status   int
	Messages []string `json:"errorMessages"`
}

func (e *apiError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("jira: %d: %s", e.Status, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("jira: %d %s", e.Status, http.StatusText(e.Status))
}

func (c *Client) endpoint(path string, q url.Values) (string, error) {
	base, err := c.baseURL()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	u := strings.TrimRight(base, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u, err := c.endpoint(path, q)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) Filters() []tracker.Filter {
	out := make([]tracker.Filter, len(tracker.DefaultFilters))
	copy(out, tracker.DefaultFilters)
	return out
}

func (c *Client) FilteredIssues(ctx context.Context, filterKey string) ([]tracker.Issue, error) {
	f, ok := tracker.FilterByKey(filterKey)
	if !ok {
		return nil, fmt.Errorf("unknown filter %q", filterKey)
	}
	var res searchResponse
	q := url.Values{"jql": {f.JQL}, "fields": {issueFields}, "maxResults": {"50"}}
	if err := c.get(ctx, "/rest/api/2/search", q, &res); err != nil {
		return nil, fmt.Errorf("search %s: %w", filterKey, err)
	}
	issues := make([]tracker.Issue, len(res.Issues))
	for i, is := range res.Issues {
		issues[i] = is.toIssue()
	}
	return issues, nil
}

// Issue fetches one issue and records it in the user's view history.
func (c *Client) Issue(ctx context.Context, issueKey string) (*tracker.Issue, error) {
	var res issueResponse
	q := url.Values{"fields": {issueFields}, "updateHistory": {"true"}}
	if err := c.get(ctx, "/rest/api/2/issue/"+url.PathEscape(issueKey), q, &res); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issueKey, err)
	}
	is := res.toIssue()
	return &is, nil
}

func (c *Client) UploadAttachment(ctx context.Context, issueKey, path string, progress tracker.ProgressFunc) (*tracker.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	u, err := c.endpoint("/rest/api/2/issue/"+url.PathEscape(issueKey)+"/attachments", nil)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &progressReader{r: f, total: info.Size(), fn: progress}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "no-check")

	var res []attachmentResponse
	if err := c.do(req, &res); err != nil {
		pr.CloseWithError(err)
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("upload %s: empty response", filepath.Base(path))
	}
	a := res[0].toAttachment()
	return &a, nil
}

func (c *Client) DeleteAttachment(ctx context.Context, attachmentID string) error {
	u, err := c.endpoint("/rest/api/2/attachment/"+url.PathEscape(attachmentID), nil)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("delete attachment %s: %w", attachmentID, err)
	}
	return nil
}

// DownloadAttachment streams url into dest through a temp file.
func (c *Client) DownloadAttachment(ctx context.Context, rawURL, dest string, progress tracker.ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	src := &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", filepath.Base(dest), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return err
	}
	committed = true
	return nil
}

func (c *Client) ImageDataURI(ctx context.Context, rawURL, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", &apiError{Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Myself succeeds when the current token is accepted by the site.
func (c *Client) Myself(ctx context.Context) error {
	return c.get(ctx, "/rest/api/2/myself", nil, nil)
}

var _ tracker.Tracker = (*Client)(nil)

type progressReader struct {
	r     io.Reader
	total int64
	done  int64
	fn    tracker.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 && p.fn != nil {
		p.done += int64(n)
		total := p.total
		if total <= 0 {
			total = p.done
		}
		p.fn(p.done, total)
	}
	return n, err
}
