package email

import (
	"bytes"
	"context"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessageWithAttachment(t *testing.T) {
	pdf := bytes.Repeat([]byte("%PDF-1.3 receipt "), 20)
	raw, err := buildMessage("billing@invoicepay.local", Message{
		To:      []string{"grace@example.com"},
		Subject: "Payment received for INV-1A2B3C4D",
		HTML:    "<p>Thank you for your payment of ₦1,000.00</p>",
		Attachments: []Attachment{
			{Filename: "receipt-inv-1a2b3c4d.pdf", ContentType: "application/pdf", Data: pdf},
		},
	})
	require.NoError(t, err)

	parsed, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", parsed.Header.Get("To"))

	subject, err := new(mime.WordDecoder).DecodeHeader(parsed.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Payment received for INV-1A2B3C4D", subject)

	mediaType, params, err := mime.ParseMediaType(parsed.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	reader := multipart.NewReader(parsed.Body, params["boundary"])

	htmlPart, err := reader.NextPart()
	require.NoError(t, err)
	html, err := io.ReadAll(htmlPart)
	require.NoError(t, err)
	assert.Contains(t, string(html), "Thank you for your payment of ₦1,000.00")

	attachment, err := reader.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "receipt-inv-1a2b3c4d.pdf", attachment.FileName())
	assert.Equal(t, "base64", attachment.Header.Get("Content-Transfer-Encoding"))

	_, err = reader.NextPart()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSendWithoutRecipients(t *testing.T) {
	err := NewSMTP(Config{Host: "localhost", Port: 25}).Send(context.Background(), Message{Subject: "x"})
	require.ErrorIs(t, err, ErrNoRecipients)
}
