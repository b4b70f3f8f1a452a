package anthropic

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ashcbrd/genealogy-buddy-ai/internal/ai"
	"github.com/ashcbrd/genealogy-buddy-ai/internal/domain"
)

func testProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{APIKey: "test-key"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestValidateParams_AcceptsEveryArtifactType(t *testing.T) {
	p := testProvider(t)

	// Every MIME type an upload accepts must also be analyzable, or
	// reserved quota is burned on a guaranteed failure.
	for contentType := range domain.SupportedArtifactTypes {
		err := p.validateParams(ai.AnalyzeParams{
			Type:        domain.AnalysisTypeDocument,
			ImageData:   []byte("data"),
			ContentType: contentType,
		})
		if err != nil {
			t.Errorf("content type %s should be accepted, got %v", contentType, err)
		}
	}
}

func TestValidateParams_RejectsUnknownContentType(t *testing.T) {
	p := testProvider(t)

	err := p.validateParams(ai.AnalyzeParams{
		Type:        domain.AnalysisTypeDocument,
		ImageData:   []byte("data"),
		ContentType: "image/tiff",
	})
	if !errors.Is(err, ai.EAIInvalidInput) {
		t.Errorf("expected EAIInvalidInput, got %v", err)
	}
}

func TestBuildRequestBody_PDFUsesDocumentBlock(t *testing.T) {
	p := testProvider(t)

	body, err := p.buildRequestBody(ai.AnalyzeParams{
		Type:        domain.AnalysisTypeDocument,
		ImageData:   []byte("%PDF-1.4"),
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatal(err)
	}

	var req apiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	content := req.Messages[0].Content
	if content[0].Type != "document" {
		t.Errorf("expected document block for PDF, got %q", content[0].Type)
	}
	if content[0].Source.MediaType != "application/pdf" {
		t.Errorf("unexpected media type %q", content[0].Source.MediaType)
	}
}

func TestBuildRequestBody_PhotoUsesImageBlock(t *testing.T) {
	p := testProvider(t)

	body, err := p.buildRequestBody(ai.AnalyzeParams{
		Type:        domain.AnalysisTypePhoto,
		ImageData:   []byte{0xFF, 0xD8},
		ContentType: "image/jpeg",
	})
	if err != nil {
		t.Fatal(err)
	}

	var req apiRequest
	if err := json.Unmarshal(body, &req); err != nil {
		t.Fatal(err)
	}
	content := req.Messages[0].Content
	if content[0].Type != "image" {
		t.Errorf("expected image block for JPEG, got %q", content[0].Type)
	}
	if content[1].Type != "text" || content[1].Text == "" {
		t.Error("prompt text block should follow the media block")
	}
}
