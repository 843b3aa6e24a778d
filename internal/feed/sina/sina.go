package sina

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"

	"golddesk/internal/httpx"
)

// Config controls the hq quote-line client.
type Config struct {
	Name    string
	BaseURL string // keys are appended as a comma-joined list
	Referer string // the feed rejects requests without it
}

// Client fetches one combined quote line for a set of instrument keys.
// The feed answers with a series of `key="comma,separated,fields";`
// assignments in GB18030; invalid byte sequences are replaced rather
// than treated as an error.
type Client struct {
	cfg    Config
	client *httpx.Client
	log    *logrus.Logger
}

func New(cfg Config, hc *httpx.Client, log *logrus.Logger) *Client {
	if cfg.Name == "" {
		cfg.Name = "Sina"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://hq.sinajs.cn/list="
	}
	if cfg.Referer == "" {
		cfg.Referer = "https://finance.sina.com.cn/"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{cfg: cfg, client: hc, log: log}
}

func (c *Client) Name() string { return c.cfg.Name }

// FetchQuoteLine issues a single request bundling all requested keys and
// returns the decoded body. Any transport or upstream failure yields ""
// rather than an error: a missing quote line this cycle is tolerated and
// will likely populate on the next poll.
func (c *Client) FetchQuoteLine(ctx context.Context, keys []string) string {
	if len(keys) == 0 {
		return ""
	}
	url := c.cfg.BaseURL + strings.Join(keys, ",")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return ""
	}
	req.Header.Set("Referer", c.cfg.Referer)

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.log.WithError(err).WithField("feed", c.cfg.Name).Debug("quote line fetch failed")
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.WithField("feed", c.cfg.Name).WithField("status", resp.StatusCode).Debug("quote line rejected")
		return ""
	}

	decoded, err := io.ReadAll(transform.NewReader(resp.Body, simplifiedchinese.GB18030.NewDecoder()))
	if err != nil {
		c.log.WithError(err).WithField("feed", c.cfg.Name).Debug("quote line read failed")
		return ""
	}
	return string(decoded)
}

// ExtractField finds the assignment for key inside a raw quote line and
// splits its value on commas. Field indices are fixed per instrument;
// that layout is a contract with the upstream format. Returns nil when
// the key is absent.
func ExtractField(raw, key string) []string {
	if raw == "" {
		return nil
	}
	re := regexp.MustCompile(regexp.QuoteMeta(key) + `="([^"]+)"`)
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	return strings.Split(m[1], ",")
}
