package provider

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/jobstack/resume-parser/constants"
)

// Office extracts text locally from DOCX archives and plain text. It never
// calls out and never costs anything, so it has no rate gate.
type Office struct {
	log     *zap.SugaredLogger
	metrics Metrics
}

func NewOffice(log *zap.SugaredLogger) *Office {
	return &Office{log: log.Named("office")}
}

func (o *Office) Name() string { return "office" }

func (o *Office) Supports(kind constants.Kind) bool {
	return kind == constants.KindOffice || kind == constants.KindText
}

func (o *Office) EstimateCost(int) float64 { return 0 }

func (o *Office) Metrics() *Metrics { return &o.metrics }

func (o *Office) Extract(_ context.Context, data []byte, kind constants.Kind) (*RawExtraction, error) {
	o.metrics.recordStart()
	start := time.Now()

	var text, method string
	var err error
	switch kind {
	case constants.KindOffice:
		text, err = extractDocxText(data)
		method = "docx-xml"
	case constants.KindText:
		if !utf8.Valid(data) {
			o.metrics.recordError()
			return nil, errors.Mark(errors.New("office: text input is not valid UTF-8"), ErrUnsupportedFormat)
		}
		text = string(data)
		method = "direct-read"
	default:
		o.metrics.recordError()
		return nil, errors.Mark(errors.Newf("office: kind %s not supported", kind), ErrUnsupportedFormat)
	}
	if err != nil {
		o.metrics.recordError()
		return nil, err
	}

	o.metrics.recordSuccess(0)
	return &RawExtraction{
		Text:       text,
		Pages:      1,
		Confidence: 1.0,
		Provider:   o.Name(),
		Method:     method,
		Duration:   time.Since(start),
	}, nil
}

// extractDocxText reads the text runs out of word/document.xml. Legacy .doc
// binaries are not a zip archive; they fail as transient so the router hands
// them to the fallback adapter, which reads them multimodally.
func extractDocxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "open docx archive"), ErrTransient)
	}

	var doc io.ReadCloser
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc, err = f.Open()
			if err != nil {
				return "", errors.Mark(errors.Wrap(err, "open document.xml"), ErrUnsupportedFormat)
			}
			break
		}
	}
	if doc == nil {
		return "", errors.Mark(errors.New("docx: word/document.xml missing"), ErrUnsupportedFormat)
	}
	defer doc.Close()

	var sb strings.Builder
	dec := xml.NewDecoder(doc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Mark(errors.Wrap(err, "decode document.xml"), ErrUnsupportedFormat)
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.EndElement:
			// Paragraph and tab boundaries become whitespace so words from
			// adjacent runs don't fuse.
			if t.Name.Local == "p" {
				sb.WriteByte('\n')
			} else if t.Name.Local == "tab" {
				sb.WriteByte('\t')
			}
		}
	}
	return sb.String(), nil
}
