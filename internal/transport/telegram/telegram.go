// Package telegram posts messages through the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type Config struct {
	// Token is used when a post carries no bot token of its own.
	Token     string
	ParseMode string
	// URL overrides the Bot API endpoint (tests, local bot API servers).
	URL     string
	Timeout time.Duration
}

// Poster is a kit.Poster for Telegram chats. RoomID is the numeric chat id and
// ThreadID the optional forum topic.
type Poster struct {
	cfg  Config
	log  logx.Logger
	http *http.Client

	mu   sync.Mutex
	bots map[string]*tele.Bot
}

func New(cfg Config, log logx.Logger) *Poster {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Poster{
		cfg:  cfg,
		log:  log,
		http: &http.Client{Timeout: timeout},
		bots: map[string]*tele.Bot{},
	}
}

func (p *Poster) Name() string { return "telegram" }

// bot returns a cached client for token. Bots are created offline so no
// getMe round trip happens before the first send.
func (p *Poster) bot(token string) (*tele.Bot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.bots[token]; ok {
		return b, nil
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     p.cfg.URL,
		Token:   token,
		Client:  p.http,
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	p.bots[token] = b
	return b, nil
}

func (p *Poster) Post(ctx context.Context, post kit.Post) (kit.MessageRef, error) {
	token := strings.TrimSpace(post.APIToken)
	if token == "" {
		token = strings.TrimSpace(p.cfg.Token)
	}
	if token == "" {
		return kit.MessageRef{}, kit.NoRetry(errors.New("telegram: bot token is empty"))
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(post.RoomID), 10, 64)
	if err != nil {
		return kit.MessageRef{}, kit.NoRetry(fmt.Errorf("telegram: room id %q is not a chat id", post.RoomID))
	}
	b, err := p.bot(token)
	if err != nil {
		return kit.MessageRef{}, err
	}

	chunks := splitText(post.Body, textLimit, p.cfg.ParseMode)
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := b.Send(tele.ChatID(chatID), chunk, &tele.SendOptions{
			ParseMode:           p.cfg.ParseMode,
			ThreadID:            post.ThreadID,
			DisableNotification: post.SelfUnread,
		})
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = kit.MessageRef{RoomID: post.RoomID, ThreadID: post.ThreadID, MessageID: strconv.Itoa(msg.ID)}
		}
	}
	if len(chunks) > 1 {
		p.log.Debug("long post split", logx.Int("chunks", len(chunks)), logx.String("room_id", post.RoomID))
	}
	return first, nil
}

// classify marks Bot API client errors other than flood control as permanent.
func classify(err error) error {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return kit.NoRetry(err)
	}
	return err
}

const textLimit = 4000

// splitText cuts s into chunks of at most limit runes. It prefers newline
// boundaries and, for HTML parse mode, avoids cutting inside a tag.
func splitText(s string, limit int, parseMode string) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := min(start+limit, len(rs))

		if end < len(rs) {
			for i := end - 1; i > start; i-- {
				// Only take a newline that leaves a reasonably sized chunk.
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
		}

		if strings.EqualFold(parseMode, tele.ModeHTML) && end < len(rs) {
			open, closed := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					open = i
				case '>':
					closed = i
				}
			}
			if open > closed && open > start+1 {
				end = open
			}
		}

		out = append(out, strings.TrimRight(string(rs[start:end]), "\n"))

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
