package interfaces_test

import (
	"github.com/ankek/unmeiori/internal/divination"
	"github.com/ankek/unmeiori/internal/docx"
	"github.com/ankek/unmeiori/internal/fonts"
	"github.com/ankek/unmeiori/internal/interfaces"
	"github.com/ankek/unmeiori/internal/pdf"
	"github.com/ankek/unmeiori/internal/preview"
	"github.com/ankek/unmeiori/internal/renderer"
	"github.com/ankek/unmeiori/internal/storage"
)

// Compile-time checks that the concrete types satisfy the consumer interfaces
var (
	_ interfaces.FontResolver     = (*fonts.Resolver)(nil)
	_ interfaces.DiagramRenderer  = (*renderer.Renderer)(nil)
	_ interfaces.PaginatedBuilder = (*pdf.Builder)(nil)
	_ interfaces.FlowBuilder      = (*docx.Builder)(nil)
	_ interfaces.PreviewRenderer  = (*preview.ProcessRenderer)(nil)
	_ interfaces.PreviewRenderer  = preview.DisabledRenderer{}
	_ interfaces.ContentStore     = (*storage.ContentStore)(nil)
	_ interfaces.RecordStore      = (*storage.BadgerStore)(nil)
	_ interfaces.RecordStore      = (*storage.MemoryStore)(nil)
	_ interfaces.TemplateStore    = (*storage.BadgerStore)(nil)
	_ interfaces.TemplateStore    = (*storage.MemoryStore)(nil)
	_ interfaces.CalendarService  = (*divination.Calendar)(nil)
	_ interfaces.NameService      = (*divination.Names)(nil)
)
