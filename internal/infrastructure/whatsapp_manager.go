package infrastructure

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/perzivalh/botsito-podopie/internal/entities"
)

// WhatsAppManager manages per-device WhatsApp Web clients. Each device
// slug gets its own sqlite store under baseDir.
type WhatsAppManager struct {
	clients map[string]*WhatsAppClient
	mu      sync.RWMutex
	baseDir string

	// HandlerFactory builds the event handler wired into every new
	// client, typically forwarding parsed messages into the engine.
	HandlerFactory func(client *WhatsAppClient) func(interface{})
}

func NewWhatsAppManager(baseDir string) *WhatsAppManager {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		fmt.Printf("Warning: could not create devices directory: %v\n", err)
	}

	return &WhatsAppManager{
		clients: make(map[string]*WhatsAppClient),
		baseDir: baseDir,
	}
}

// GetClient returns the existing client for a device (nil if none).
func (m *WhatsAppManager) GetClient(device string) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[device]
}

// GetOrCreateClient returns the device's client, creating it on first use.
func (m *WhatsAppManager) GetOrCreateClient(device string) (*WhatsAppClient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[device]; exists {
		return client, nil
	}

	dbPath := filepath.Join(m.baseDir, fmt.Sprintf("device_%s.db", device))
	client, err := NewWhatsAppClient(dbPath, device)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for device %s: %w", device, err)
	}

	if m.HandlerFactory != nil {
		client.AddHandler(m.HandlerFactory(client))
	}

	m.clients[device] = client
	return client, nil
}

// ConnectClient connects the device's client (creates if needed).
func (m *WhatsAppManager) ConnectClient(device string) (*WhatsAppClient, error) {
	client, err := m.GetOrCreateClient(device)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp for device %s: %w", device, err)
	}

	return client, nil
}

// LogoutClient logs out a device and drops it from the manager. Returns
// nil when the device is unknown or already logged out.
func (m *WhatsAppManager) LogoutClient(device string) error {
	m.mu.RLock()
	client, exists := m.clients[device]
	m.mu.RUnlock()

	if !exists || client == nil {
		return nil
	}

	var err error
	if client.IsLoggedIn() || client.Client.IsConnected() {
		err = client.Logout()
	}

	m.mu.Lock()
	delete(m.clients, device)
	m.mu.Unlock()

	return err
}

// Send delivers through the first logged-in device, making the manager
// usable as a channel when any paired device can answer.
func (m *WhatsAppManager) Send(to string, msg entities.OutboundMessage) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for device, client := range m.clients {
		if client.IsLoggedIn() && client.IsConnected() {
			if err := client.Send(to, msg); err != nil {
				return fmt.Errorf("send via device %s: %w", device, err)
			}
			return nil
		}
	}
	return fmt.Errorf("no logged-in device available")
}

// DisconnectAll disconnects all clients (for graceful shutdown).
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*WhatsAppClient)
}
