package document

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewSpanValidation(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		box        Box
		wantErr    bool
	}{
		{
			name:       "valid span",
			confidence: 0.9,
			box:        Box{X: 10, Y: 10, Width: 100, Height: 20},
			wantErr:    false,
		},
		{
			name:       "negative width",
			confidence: 0.9,
			box:        Box{X: 10, Y: 10, Width: -1, Height: 20},
			wantErr:    true,
		},
		{
			name:       "negative origin",
			confidence: 0.9,
			box:        Box{X: -5, Y: 10, Width: 100, Height: 20},
			wantErr:    true,
		},
		{
			name:       "confidence above one",
			confidence: 1.2,
			box:        Box{Width: 10, Height: 10},
			wantErr:    true,
		},
		{
			name:       "confidence below zero",
			confidence: -0.1,
			box:        Box{Width: 10, Height: 10},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSpan("text", tt.confidence, tt.box)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSpan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected *ValidationError, got %T", err)
				}
			}
		})
	}
}

func TestNewBlockRejectsSpanOutsideBounds(t *testing.T) {
	span, err := NewSpan("overflow", 0.5, Box{X: 90, Y: 0, Width: 50, Height: 10})
	if err != nil {
		t.Fatalf("NewSpan() error = %v", err)
	}

	_, err = NewBlock(BlockParagraph, Box{X: 0, Y: 0, Width: 100, Height: 100}, []Span{span})
	if err == nil {
		t.Fatal("expected validation error for span exceeding block bounds")
	}
}

func TestNewBlockAssignsIdentity(t *testing.T) {
	a, err := NewBlock(BlockParagraph, Box{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("NewBlock() error = %v", err)
	}
	b, err := NewBlock(BlockParagraph, Box{Width: 10, Height: 10}, nil)
	if err != nil {
		t.Fatalf("NewBlock() error = %v", err)
	}
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("blocks should get distinct non-empty ids, got %q and %q", a.ID, b.ID)
	}
}

func TestDocumentValidateBlockContainment(t *testing.T) {
	doc := New("eng", []Page{
		{
			Index:  0,
			Width:  100,
			Height: 100,
			Blocks: []Block{
				{ID: "b1", Type: BlockParagraph, Box: Box{X: 50, Y: 50, Width: 60, Height: 10}},
			},
		},
	})

	if err := doc.Validate(); err == nil {
		t.Fatal("expected validation error for block exceeding page bounds")
	}
}

func TestDocumentEqual(t *testing.T) {
	makeDoc := func() *Document {
		span, _ := NewSpan("hello", 0.8, Box{Width: 50, Height: 10})
		return &Document{
			LanguageHint: "eng",
			Pages: []Page{
				{
					Index:  0,
					Width:  200,
					Height: 300,
					Blocks: []Block{
						{ID: "b1", Type: BlockParagraph, Box: Box{Width: 100, Height: 20}, Spans: []Span{span}},
					},
				},
			},
		}
	}

	a := makeDoc()
	b := makeDoc()
	if !a.Equal(b) {
		t.Error("identical documents should compare equal")
	}

	b.Pages[0].Blocks[0].Spans[0].Text = "changed"
	if a.Equal(b) {
		t.Error("documents with different span text should not compare equal")
	}

	var nilDoc *Document
	if a.Equal(nilDoc) {
		t.Error("document should not equal nil")
	}
}

func TestDocumentJSONRoundTrip(t *testing.T) {
	span, err := NewSpan("invoice total", 0.93, Box{X: 12, Y: 40, Width: 180, Height: 16})
	if err != nil {
		t.Fatalf("NewSpan() error = %v", err)
	}
	block, err := NewBlock(BlockHeading, Box{X: 10, Y: 30, Width: 200, Height: 40}, []Span{span})
	if err != nil {
		t.Fatalf("NewBlock() error = %v", err)
	}
	doc := New("eng", []Page{{Index: 0, Width: 600, Height: 800, Blocks: []Block{block}}})

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded Document
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !doc.Equal(&decoded) {
		t.Error("document changed across JSON round trip")
	}
}
