package mail

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
)

var credentials = regexp.MustCompile(`://[^/@\s]+@`)

var (
	ErrNoRecipient   = stderrors.New("收件人邮箱为空")
	ErrNotConfigured = stderrors.New("no notification URL configured")
)

// Mailer 通过 shoutrrr smtp URL 发送邮件，收件人写入 toaddresses；
// 每个收件人的 sender 只创建一次，收件人是家庭管理员与成员，数量有限
type Mailer struct {
	urls    []string
	timeout time.Duration

	mu      sync.Mutex
	senders map[string]*router.ServiceRouter
}

func NewMailer(urls []string, timeout time.Duration) *Mailer {
	return &Mailer{
		urls:    slices.Clone(urls),
		timeout: timeout,
		senders: make(map[string]*router.ServiceRouter),
	}
}

// Send 向单个收件人发送邮件
func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrNoRecipient
	}
	if len(m.urls) == 0 {
		return ErrNotConfigured
	}

	sender, err := m.senderFor(to)
	if err != nil {
		return err
	}
	return send(ctx, sender, subject, body)
}

func (m *Mailer) senderFor(to string) (*router.ServiceRouter, error) {
	key := strings.ToLower(to)

	m.mu.Lock()
	defer m.mu.Unlock()
	if sender, ok := m.senders[key]; ok {
		return sender, nil
	}

	urls := make([]string, 0, len(m.urls))
	for _, raw := range m.urls {
		u, err := withRecipient(raw, to)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	sender, err := newSender(urls, m.timeout)
	if err != nil {
		return nil, err
	}
	m.senders[key] = sender
	return sender, nil
}

// withRecipient 覆盖 smtp URL 中的收件人参数
func withRecipient(raw, to string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mail URL: %s", redact(raw))
	}
	q := u.Query()
	q.Set("toaddresses", to)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Pusher 广播推送，所有 URL 共用一个 sender
type Pusher struct {
	sender *router.ServiceRouter
}

// NewPusher 未配置 URL 时返回 nil Pusher，Send 会报 ErrNotConfigured
func NewPusher(urls []string, timeout time.Duration) (*Pusher, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	sender, err := newSender(urls, timeout)
	if err != nil {
		return nil, err
	}
	return &Pusher{sender: sender}, nil
}

func (p *Pusher) Send(ctx context.Context, subject, body string) error {
	if p == nil || p.sender == nil {
		return ErrNotConfigured
	}
	return send(ctx, p.sender, subject, body)
}

func newSender(urls []string, timeout time.Duration) (*router.ServiceRouter, error) {
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// 错误信息里可能带有凭据
		return nil, fmt.Errorf("failed to create sender: %s", redact(err.Error()))
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))
	return sender, nil
}

func send(ctx context.Context, sender *router.ServiceRouter, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if subject != "" {
		params.SetTitle(subject)
	}

	var errs []error
	for _, err := range sender.Send(body, &params) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("send failed: %s", redact(stderrors.Join(errs...).Error()))
}

// redact 去掉 URL 中 user:pass@ 部分
func redact(s string) string {
	return credentials.ReplaceAllString(s, "://***@")
}
