package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultAPIBase = "https://api.telegram.org"
	callTimeout    = 15 * time.Second
	uploadTimeout  = 5 * time.Minute
)

// Client is a minimal Bot API client.
type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	logger     zerolog.Logger
}

func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{},
		token:      token,
		baseURL:    defaultAPIBase,
		logger:     log.With().Str("component", "telegram").Logger(),
	}
}

// WithBaseURL points the client at another API server (local Bot API server, tests).
func (c *Client) WithBaseURL(base string) *Client {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type responseParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

type tgResponse[T any] struct {
	Ok          bool                `json:"ok"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
	Result      T                   `json:"result"`
}

func (r *tgResponse[T]) err(method string) error {
	if r.Ok {
		return nil
	}
	apiErr := &APIError{Method: method, Code: r.ErrorCode, Description: r.Description}
	if r.Parameters != nil {
		apiErr.RetryAfter = r.Parameters.RetryAfter
	}
	return apiErr
}

func (c *Client) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}

// call posts form params and decodes the result into out.
func call[T any](ctx context.Context, c *Client, method string, params url.Values, timeout time.Duration) (T, error) {
	var result tgResponse[T]
	if timeout <= 0 {
		timeout = callTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.makeRequest(ctx, http.MethodPost, c.endpoint(method), params, &result); err != nil {
		return result.Result, err
	}
	return result.Result, result.err(method)
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, data url.Values, out any) error {
	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(data.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		if len(data) > 0 {
			endpoint = endpoint + "?" + data.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return err
		}
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error carries the endpoint, which embeds the token
		return fmt.Errorf("telegram request failed: %w", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		return &APIError{Method: req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:], Code: resp.StatusCode, Description: "Request Entity Too Large"}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func stripURL(err error) error {
	if uerr, ok := err.(*url.Error); ok {
		return uerr.Err
	}
	return err
}

func markupParam(params url.Values, markup *InlineKeyboardMarkup) error {
	if markup == nil {
		return nil
	}
	b, err := json.Marshal(markup)
	if err != nil {
		return err
	}
	params.Set("reply_markup", string(b))
	return nil
}

func chatParam(chatID int64) string { return strconv.FormatInt(chatID, 10) }

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	u, err := call[User](ctx, c, "getMe", url.Values{}, 0)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int, timeoutSec int) ([]Update, error) {
	params := url.Values{
		"offset":          {strconv.Itoa(offset)},
		"timeout":         {strconv.Itoa(timeoutSec)},
		"allowed_updates": {`["message","callback_query","pre_checkout_query"]`},
	}
	return call[[]Update](ctx, c, "getUpdates", params, time.Duration(timeoutSec)*time.Second+callTimeout)
}

// DeleteWebhook switches the bot back to getUpdates delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := call[bool](ctx, c, "deleteWebhook", url.Values{}, 0)
	return err
}

// SetWebhook points Telegram at url. Calls carry secret in the X-Telegram-Bot-Api-Secret-Token header.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	params := url.Values{
		"url":             {webhookURL},
		"secret_token":    {secret},
		"allowed_updates": {`["message","callback_query","pre_checkout_query"]`},
	}
	_, err := call[bool](ctx, c, "setWebhook", params, 0)
	return err
}

// SetMyCommands registers the command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	b, err := json.Marshal(commands)
	if err != nil {
		return err
	}
	_, err = call[bool](ctx, c, "setMyCommands", url.Values{"commands": {string(b)}}, 0)
	return err
}

// SendOptions are optional fields of sendMessage and editMessageText.
type SendOptions struct {
	ReplyTo   int
	ParseMode string
	Markup    *InlineKeyboardMarkup
	NoPreview bool
}

func (o *SendOptions) apply(params url.Values) error {
	if o == nil {
		return nil
	}
	if o.ReplyTo != 0 {
		params.Set("reply_to_message_id", strconv.Itoa(o.ReplyTo))
		params.Set("allow_sending_without_reply", "true")
	}
	if o.ParseMode != "" {
		params.Set("parse_mode", o.ParseMode)
	}
	if o.NoPreview {
		params.Set("disable_web_page_preview", "true")
	}
	return markupParam(params, o.Markup)
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (*Message, error) {
	params := url.Values{"chat_id": {chatParam(chatID)}, "text": {text}}
	if err := opts.apply(params); err != nil {
		return nil, err
	}
	m, err := call[Message](ctx, c, "sendMessage", params, 0)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, opts *SendOptions) error {
	params := url.Values{
		"chat_id":    {chatParam(chatID)},
		"message_id": {strconv.Itoa(messageID)},
		"text":       {text},
	}
	if err := opts.apply(params); err != nil {
		return err
	}
	// result is the edited Message, or true for inline messages
	_, err := call[json.RawMessage](ctx, c, "editMessageText", params, 0)
	return err
}

func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	params := url.Values{"chat_id": {chatParam(chatID)}, "message_id": {strconv.Itoa(messageID)}}
	_, err := call[bool](ctx, c, "deleteMessage", params, 0)
	return err
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, queryID, text string) error {
	params := url.Values{"callback_query_id": {queryID}}
	if text != "" {
		params.Set("text", text)
	}
	_, err := call[bool](ctx, c, "answerCallbackQuery", params, 0)
	return err
}

// InvoiceRequest describes a Stars invoice.
type InvoiceRequest struct {
	Title       string
	Description string
	Payload     string
	Currency    string
	Prices      []LabeledPrice
}

func (c *Client) SendInvoice(ctx context.Context, chatID int64, inv InvoiceRequest) error {
	prices, err := json.Marshal(inv.Prices)
	if err != nil {
		return err
	}
	params := url.Values{
		"chat_id":        {chatParam(chatID)},
		"title":          {inv.Title},
		"description":    {inv.Description},
		"payload":        {inv.Payload},
		"currency":       {inv.Currency},
		"prices":         {string(prices)},
		"provider_token": {""},
	}
	_, err = call[Message](ctx, c, "sendInvoice", params, 0)
	return err
}

func (c *Client) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errorMessage string) error {
	params := url.Values{"pre_checkout_query_id": {queryID}, "ok": {strconv.FormatBool(ok)}}
	if !ok {
		params.Set("error_message", errorMessage)
	}
	_, err := call[bool](ctx, c, "answerPreCheckoutQuery", params, 0)
	return err
}

func (c *Client) GetChatMember(ctx context.Context, chatID string, userID int64) (*ChatMember, error) {
	params := url.Values{"chat_id": {chatID}, "user_id": {strconv.FormatInt(userID, 10)}}
	m, err := call[ChatMember](ctx, c, "getChatMember", params, 0)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// IsMember reports membership of userID in channel (@username or numeric id).
func (c *Client) IsMember(ctx context.Context, channel string, userID int64) (bool, error) {
	m, err := c.GetChatMember(ctx, channel, userID)
	if err != nil {
		return false, err
	}
	switch m.Status {
	case "member", "administrator", "creator":
		return true, nil
	}
	return false, nil
}

// MediaOptions are optional fields of sendVideo and sendAudio.
type MediaOptions struct {
	Caption   string
	ParseMode string
	ReplyTo   int
	Duration  int
	Title     string
	Performer string
}

// SendVideo uploads a local file as a streamable video.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path string, opts MediaOptions) error {
	fields := map[string]string{"supports_streaming": "true"}
	return c.sendFile(ctx, "sendVideo", "video", chatID, path, opts, fields)
}

// SendAudio uploads a local file as audio.
func (c *Client) SendAudio(ctx context.Context, chatID int64, path string, opts MediaOptions) error {
	fields := map[string]string{}
	if opts.Title != "" {
		fields["title"] = opts.Title
	}
	if opts.Performer != "" {
		fields["performer"] = opts.Performer
	}
	return c.sendFile(ctx, "sendAudio", "audio", chatID, path, opts, fields)
}

func (c *Client) sendFile(ctx context.Context, method, field string, chatID int64, path string, opts MediaOptions, extra map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fields := map[string]string{"chat_id": chatParam(chatID)}
	if opts.Caption != "" {
		fields["caption"] = opts.Caption
	}
	if opts.ParseMode != "" {
		fields["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyTo != 0 {
		fields["reply_to_message_id"] = strconv.Itoa(opts.ReplyTo)
		fields["allow_sending_without_reply"] = "true"
	}
	if opts.Duration > 0 {
		fields["duration"] = strconv.Itoa(opts.Duration)
	}
	for k, v := range extra {
		fields[k] = v
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeMultipart(mw, fields, field, filepath.Base(path), f))
	}()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		_ = pr.Close()
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result tgResponse[Message]
	if err := c.do(req, &result); err != nil {
		_ = pr.Close()
		return err
	}
	if err := result.err(method); err != nil {
		return err
	}
	c.logger.Debug().Str("method", method).Int64("chat_id", chatID).Msg("File sent")
	return nil
}

func writeMultipart(mw *multipart.Writer, fields map[string]string, fileField, fileName string, r io.Reader) error {
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	return mw.Close()
}
