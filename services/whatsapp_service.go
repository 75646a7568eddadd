package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"loanflow/utils"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	waEvents "go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	_ "modernc.org/sqlite"
)

// WhatsAppService delivers phone OTPs as WhatsApp messages
type WhatsAppService struct {
	client  *whatsmeow.Client
	timeout time.Duration
}

// NewWhatsAppService opens the device store and connects. On first run it
// prints a pairing QR code to the terminal and blocks until pairing ends.
func NewWhatsAppService(ctx context.Context, storePath string, timeout time.Duration) (*WhatsAppService, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout=5000&_pragma=foreign_keys=on", storePath)
	container, err := sqlstore.New(ctx, "sqlite", dsn, waLog.Stdout("WAStore", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("open whatsapp store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		utils.LogInfo("no whatsapp device found, creating a new one: %v", err)
		deviceStore = container.NewDevice()
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("WAClient", "WARN", true))
	client.AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *waEvents.Connected:
			utils.LogInfo("whatsapp client connected")
		case *waEvents.Disconnected:
			utils.LogInfo("whatsapp client disconnected: %v", v)
		case *waEvents.LoggedOut:
			utils.LogError("whatsapp client logged out")
		}
	})

	if client.Store.ID == nil {
		qr, _ := client.GetQRChannel(ctx)
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("connect whatsapp: %w", err)
		}
		for evt := range qr {
			if evt.Event == "code" {
				utils.LogInfo("scan the QR code with WhatsApp to pair the OTP sender")
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			} else {
				utils.LogInfo("whatsapp pairing event: %s", evt.Event)
			}
		}
	} else if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("connect whatsapp with stored session: %w", err)
	}

	return &WhatsAppService{client: client, timeout: timeout}, nil
}

// SendMessage sends a text message to an E.164 phone number
func (w *WhatsAppService) SendMessage(ctx context.Context, phone, message string) error {
	return callCollaborator(ctx, "whatsapp", w.timeout, func(ctx context.Context) error {
		if !w.client.IsConnected() {
			return fmt.Errorf("whatsapp client is not connected")
		}
		to := waTypes.NewJID(strings.TrimPrefix(phone, "+"), waTypes.DefaultUserServer)
		if _, err := w.client.SendMessage(ctx, to, &waProto.Message{Conversation: &message}); err != nil {
			return fmt.Errorf("send whatsapp message: %w", err)
		}
		return nil
	})
}

// Disconnect closes the connection
func (w *WhatsAppService) Disconnect() {
	w.client.Disconnect()
}
