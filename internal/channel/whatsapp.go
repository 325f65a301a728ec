package channel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/stellarlinkco/wabot/internal/bus"
	"github.com/stellarlinkco/wabot/internal/config"

	_ "modernc.org/sqlite"
)

const whatsappChannelName = "whatsapp"

const (
	whatsappSendTimeout    = 30 * time.Second
	whatsappReceiptTimeout = 10 * time.Second
)

type WhatsAppChannel struct {
	BaseChannel
	cfg            config.WhatsAppConfig
	client         *whatsmeow.Client
	storeContainer *sqlstore.Container
	conn           *connTracker
	cancel         context.CancelFunc
	handlerID      uint32
}

func NewWhatsApp(cfg config.WhatsAppConfig, msgBus *bus.MessageBus, logger zerolog.Logger) (*WhatsAppChannel, error) {
	storePath := strings.TrimSpace(cfg.StorePath)
	if storePath == "" {
		storePath = filepath.Join(config.ConfigDir(), "whatsapp-store.db")
	}

	if err := os.MkdirAll(filepath.Dir(storePath), 0755); err != nil {
		return nil, fmt.Errorf("create whatsapp store dir: %w", err)
	}

	logger = logger.With().Str("channel", whatsappChannelName).Logger()
	dbLog := waLog.Zerolog(logger.With().Str("component", "store").Logger().Level(zerolog.WarnLevel))

	storeDSN := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)", filepath.ToSlash(storePath))
	container, err := sqlstore.New(context.Background(), "sqlite", storeDSN, dbLog)
	if err != nil {
		return nil, fmt.Errorf("init whatsapp session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get whatsapp device: %w", err)
	}

	clientLog := waLog.Zerolog(logger.With().Str("component", "client").Logger().Level(zerolog.WarnLevel))
	client := whatsmeow.NewClient(deviceStore, clientLog)
	client.EnableAutoReconnect = true

	ch := &WhatsAppChannel{
		BaseChannel:    NewBaseChannel(whatsappChannelName, msgBus, cfg.AllowFrom),
		cfg:            cfg,
		client:         client,
		storeContainer: container,
	}
	ch.log = logger
	ch.conn = newConnTracker(ch.logTransition)
	ch.handlerID = ch.client.AddEventHandler(ch.handleEvent)

	return ch, nil
}

func (w *WhatsAppChannel) Name() string {
	return whatsappChannelName
}

// ConnState reports the current session state.
func (w *WhatsAppChannel) ConnState() ConnState {
	if w.conn == nil {
		return StateConnecting
	}
	return w.conn.State()
}

func (w *WhatsAppChannel) Start(ctx context.Context) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if w.conn.State() == StateClosedTerminal {
		return fmt.Errorf("whatsapp session logged out: delete %s and pair again", w.storePath())
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.conn.apply(evConnecting)

	if w.client.Store.ID == nil {
		qrChan, err := w.client.GetQRChannel(ctx)
		if err != nil {
			w.cancel()
			return fmt.Errorf("get whatsapp qr channel: %w", err)
		}
		go w.consumeQR(ctx, qrChan)
	}

	if err := w.client.Connect(); err != nil {
		w.cancel()
		w.conn.apply(evDisconnected)
		return fmt.Errorf("connect whatsapp: %w", err)
	}

	go func() {
		<-ctx.Done()
		w.client.Disconnect()
	}()

	return nil
}

func (w *WhatsAppChannel) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}

	if w.client != nil {
		if w.handlerID != 0 {
			w.client.RemoveEventHandler(w.handlerID)
			w.handlerID = 0
		}
		w.client.Disconnect()
	}

	if w.storeContainer != nil {
		if err := w.storeContainer.Close(); err != nil {
			return fmt.Errorf("close whatsapp store: %w", err)
		}
		w.storeContainer = nil
	}

	w.log.Info().Msg("stopped")
	return nil
}

// Send delivers a text reply, or marks msg.Receipt as read when set.
func (w *WhatsAppChannel) Send(msg bus.OutboundMessage) error {
	if w.client == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if msg.Receipt != nil {
		return w.markRead(*msg.Receipt)
	}

	chatID := strings.TrimSpace(msg.ChatID)
	if chatID == "" {
		return fmt.Errorf("whatsapp chat id is required")
	}

	chatJID, err := parseWhatsAppJID(chatID)
	if err != nil {
		return fmt.Errorf("parse whatsapp chat id %q: %w", chatID, err)
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), whatsappSendTimeout)
	defer cancel()

	_, err = w.client.SendMessage(ctx, chatJID, &waE2E.Message{
		Conversation: proto.String(content),
	})
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	w.log.Debug().Str("chat", chatID).Msg("reply sent")
	return nil
}

func (w *WhatsAppChannel) markRead(ref bus.MessageRef) error {
	chat, err := parseWhatsAppJID(ref.ChatID)
	if err != nil {
		return fmt.Errorf("parse receipt chat %q: %w", ref.ChatID, err)
	}
	sender, err := parseWhatsAppJID(ref.Sender)
	if err != nil {
		return fmt.Errorf("parse receipt sender %q: %w", ref.Sender, err)
	}
	at := ref.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), whatsappReceiptTimeout)
	defer cancel()
	if err := w.client.MarkRead(ctx, []types.MessageID{types.MessageID(ref.ID)}, at, chat, sender); err != nil {
		return fmt.Errorf("mark whatsapp message read: %w", err)
	}
	w.log.Debug().Str("sender", ref.Sender).Str("id", ref.ID).Msg("status marked as seen")
	return nil
}

func (w *WhatsAppChannel) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				w.log.Info().Msg("scan the QR code below with WhatsApp > Linked devices")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			default:
				if evt.Error != nil {
					w.log.Warn().Err(evt.Error).Str("event", evt.Event).Msg("login event")
				} else {
					w.log.Info().Str("event", evt.Event).Msg("login event")
				}
			}
		}
	}
}

func (w *WhatsAppChannel) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		w.handleMessage(e)
	case *events.Connected:
		w.conn.apply(evConnected)
	case *events.Disconnected:
		w.conn.apply(evDisconnected)
	case *events.StreamReplaced:
		w.terminate("stream replaced by another client")
	case *events.LoggedOut:
		w.terminate(fmt.Sprintf("logged out (reason %d)", int(e.Reason)))
	case *events.ConnectFailure:
		if e.Reason.IsLoggedOut() {
			w.terminate(fmt.Sprintf("authentication failed (reason %d)", int(e.Reason)))
			return
		}
		w.conn.apply(evDisconnected)
	}
}

// terminate moves the session to the terminal state and stops reconnecting.
func (w *WhatsAppChannel) terminate(reason string) {
	if w.client != nil {
		w.client.EnableAutoReconnect = false
	}
	w.conn.apply(evLoggedOut)
	w.log.Error().Str("reason", reason).Str("store", w.storePath()).
		Msg("whatsapp session ended; delete the store and restart to pair again")
}

func (w *WhatsAppChannel) logTransition(from, to ConnState) {
	w.log.Info().Stringer("from", from).Stringer("to", to).Msg("connection state")
}

func (w *WhatsAppChannel) storePath() string {
	if p := strings.TrimSpace(w.cfg.StorePath); p != "" {
		return p
	}
	return filepath.Join(config.ConfigDir(), "whatsapp-store.db")
}

func (w *WhatsAppChannel) handleMessage(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}

	info := evt.Info
	rawSender := info.Sender.String()
	sender := info.Sender.ToNonAD().String()
	if !info.IsFromMe && !w.IsAllowed(sender) && !w.IsAllowed(rawSender) {
		w.log.Debug().Str("sender", sender).Msg("rejected message")
		return
	}

	isStatus := info.Chat.User == types.StatusBroadcastJID.User && info.Chat.Server == types.BroadcastServer
	content := extractText(evt.Message)
	if content == "" && !isStatus {
		return
	}

	chatID := info.Chat.String()
	w.bus.Inbound <- bus.InboundMessage{
		Channel:   whatsappChannelName,
		SenderID:  sender,
		ChatID:    chatID,
		Content:   content,
		Timestamp: info.Timestamp,
		Ref: bus.MessageRef{
			ID:     string(info.ID),
			ChatID: chatID,
			Sender: rawSender,
			At:     info.Timestamp,
		},
		FromSelf:     info.IsFromMe,
		IsGroup:      info.IsGroup || info.Chat.Server == types.GroupServer,
		IsBroadcast:  info.Chat.Server == types.BroadcastServer && !isStatus,
		IsNewsletter: info.Chat.Server == types.NewsletterServer,
		IsStatus:     isStatus,
		Metadata: map[string]any{
			"message_id": string(info.ID),
			"push_name":  info.PushName,
		},
	}
}

// extractText returns the text of plain, extended and captioned messages.
func extractText(msg *waE2E.Message) string {
	if text := strings.TrimSpace(msg.GetConversation()); text != "" {
		return text
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		if text := strings.TrimSpace(ext.GetText()); text != "" {
			return text
		}
	}
	if image := msg.GetImageMessage(); image != nil {
		return strings.TrimSpace(image.GetCaption())
	}
	if video := msg.GetVideoMessage(); video != nil {
		return strings.TrimSpace(video.GetCaption())
	}
	return ""
}

func parseWhatsAppJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.EmptyJID, fmt.Errorf("empty jid")
	}

	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}

	user := strings.TrimPrefix(raw, "+")
	if isDigitsOnly(user) {
		return types.NewJID(user, types.DefaultUserServer), nil
	}

	return types.ParseJID(raw)
}

func isDigitsOnly(val string) bool {
	if val == "" {
		return false
	}
	for _, r := range val {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
