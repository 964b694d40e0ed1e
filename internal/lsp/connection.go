package lsp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/textproto"
	"strconv"
	"sync"
)

// Connection reads and writes base-protocol framed LSP messages.
type Connection struct {
	reader *bufio.Reader
	logger *slog.Logger

	mu     sync.Mutex // serializes writes
	writer io.Writer
}

// NewConnection creates a new LSP connection
func NewConnection(reader io.Reader, writer io.Writer, logger *slog.Logger) *Connection {
	return &Connection{
		reader: bufio.NewReader(reader),
		writer: writer,
		logger: logger,
	}
}

// ReadMessage reads the next message. It returns io.EOF when the peer
// closed the stream between messages.
func (c *Connection) ReadMessage() (*Message, error) {
	header, err := textproto.NewReader(c.reader).ReadMIMEHeader()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	lengthStr := header.Get("Content-Length")
	if lengthStr == "" {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", lengthStr)
	}

	content := make([]byte, length)
	if _, err := io.ReadFull(c.reader, content); err != nil {
		return nil, fmt.Errorf("failed to read message content: %w", err)
	}

	var message Message
	if err := json.Unmarshal(content, &message); err != nil {
		return nil, fmt.Errorf("failed to parse JSON message: %w", err)
	}
	c.logger.Debug("message received", "method", message.Method, "id", message.ID)
	return &message, nil
}

// WriteMessage writes one framed message.
func (c *Connection) WriteMessage(message *Message) error {
	content, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := fmt.Fprintf(c.writer, "Content-Length: %d\r\n\r\n", len(content)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if _, err := c.writer.Write(content); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	c.logger.Debug("message sent", "method", message.Method, "id", message.ID)
	return nil
}
