package app

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/soocke/pixel-scroll-go/domain/capture"
	"github.com/soocke/pixel-scroll-go/domain/output"
	"github.com/soocke/pixel-scroll-go/domain/scroll"
)

const (
	ServerName    = "pixel-scroll"
	ServerVersion = "0.1.0"
)

// MCPServer exposes the scroll session as MCP tools over stdio.
type MCPServer struct {
	c         *AppContainer
	mcpServer *mcpsdk.Server
}

type EmptyInput struct{}

type InitInput struct {
	X            int  `json:"x,omitempty" jsonschema:"Left edge of the capture region in screen pixels"`
	Y            int  `json:"y,omitempty" jsonschema:"Top edge of the capture region in screen pixels"`
	Width        int  `json:"width,omitempty" jsonschema:"Region width; 0 falls back to the active window or the configured selection"`
	Height       int  `json:"height,omitempty" jsonschema:"Region height"`
	ActiveWindow bool `json:"active_window,omitempty" jsonschema:"Use the focused window's frame as the region"`
	InsetTop     int  `json:"inset_top,omitempty" jsonschema:"Rows to trim from the top of the region, e.g. a sticky header"`
	InsetBottom  int  `json:"inset_bottom,omitempty" jsonschema:"Rows to trim from the bottom of the region"`
	InsetLeft    int  `json:"inset_left,omitempty" jsonschema:"Columns to trim from the left of the region"`
	InsetRight   int  `json:"inset_right,omitempty" jsonschema:"Columns to trim from the right of the region, e.g. a scrollbar"`
}

type InitOutput struct {
	SessionID string `json:"session_id"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type OverlapOutput struct {
	Sequence   uint64  `json:"sequence,omitempty"`
	Offset     int     `json:"offset"`
	NewRows    int     `json:"new_rows"`
	Confidence float64 `json:"confidence"`
	Duplicate  bool    `json:"duplicate"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
}

type HandleImageInput struct {
	Image string `json:"image" jsonschema:"Base64-encoded PNG or JPEG frame with the session's width"`
}

type SizeOutput struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	State  string `json:"state"`
}

type ImageDataInput struct {
	MaxWidth int `json:"max_width,omitempty" jsonschema:"Downscale the preview to at most this width; 0 uses the configured preview width"`
}

type ImageDataOutput struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Bytes  int `json:"bytes"`
}

type SaveFileInput struct {
	Path   string `json:"path,omitempty" jsonschema:"Destination path; defaults to a timestamped file in the output directory"`
	Format string `json:"format,omitempty" jsonschema:"png or jpg; defaults to the path extension"`
}

type SaveOutput struct {
	Path   string `json:"path,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type StateOutput struct {
	State string `json:"state"`
}

type StatsOutput struct {
	SessionID        string  `json:"session_id"`
	State            string  `json:"state"`
	Captures         uint64  `json:"captures"`
	FailedCaptures   uint64  `json:"failed_captures"`
	Appended         uint64  `json:"appended"`
	Duplicates       uint64  `json:"duplicates"`
	AvgCaptureMicros float64 `json:"avg_capture_us"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	BufferBytes      int     `json:"buffer_bytes"`
}

// NewMCPServer registers the scroll tools on a fresh MCP server.
func NewMCPServer(c *AppContainer) *MCPServer {
	s := &MCPServer{c: c}
	s.mcpServer = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until ctx is cancelled or the client disconnects.
func (s *MCPServer) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *MCPServer) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_init",
		Description: "Start a scroll-capture session for a screen region. Fails if a session is already active; call scroll_clear first to discard it.",
	}, s.handleInit)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_capture",
		Description: "Capture the session region once and stitch it onto the composite. Scroll the content between calls. duplicate=true means the view did not move.",
	}, s.handleCapture)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_handle_image",
		Description: "Stitch a client-supplied frame onto the composite instead of capturing the screen.",
	}, s.handleHandleImage)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_get_size",
		Description: "Report the composite's current width and height.",
	}, s.handleGetSize)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_get_image_data",
		Description: "Return the composite so far as a PNG image, optionally downscaled for preview.",
	}, s.handleGetImageData)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_save_to_file",
		Description: "Write the composite to disk. The session stays open so capturing can continue.",
	}, s.handleSaveToFile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_save_to_clipboard",
		Description: "Copy the composite to the system clipboard as an image.",
	}, s.handleSaveToClipboard)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_finish",
		Description: "Stop accepting frames. The composite can still be saved until scroll_clear or scroll_init.",
	}, s.handleFinish)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_clear",
		Description: "Discard the session and its composite.",
	}, s.handleClear)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "scroll_stats",
		Description: "Report capture counters and timing for the current session.",
	}, s.handleStats)
}

func (s *MCPServer) handleInit(_ context.Context, _ *mcpsdk.CallToolRequest, args InitInput) (*mcpsdk.CallToolResult, InitOutput, error) {
	if args.Width < 0 || args.Height < 0 {
		return nil, InitOutput{}, fmt.Errorf("%w: negative size %dx%d", scroll.ErrInvalidRegion, args.Width, args.Height)
	}
	region, err := s.c.ResolveRegion(RegionRequest{
		Rect:         image.Rect(args.X, args.Y, args.X+args.Width, args.Y+args.Height),
		ActiveWindow: args.ActiveWindow,
		InsetTop:     args.InsetTop,
		InsetRight:   args.InsetRight,
		InsetBottom:  args.InsetBottom,
		InsetLeft:    args.InsetLeft,
	})
	if err != nil {
		return nil, InitOutput{}, err
	}
	id, err := s.c.Scroll.Init(region)
	if err != nil {
		return nil, InitOutput{}, err
	}
	return nil, InitOutput{
		SessionID: id,
		X:         region.Min.X,
		Y:         region.Min.Y,
		Width:     region.Dx(),
		Height:    region.Dy(),
	}, nil
}

func (s *MCPServer) handleCapture(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, OverlapOutput, error) {
	frame, res, err := s.c.Scroll.CaptureAndHandle()
	if err != nil {
		return nil, OverlapOutput{}, err
	}
	out := s.overlapOutput(frame, res.Offset, res.NewRows(frame.Height()), res.Confidence, res.Duplicate)
	return nil, out, nil
}

func (s *MCPServer) handleHandleImage(_ context.Context, _ *mcpsdk.CallToolRequest, args HandleImageInput) (*mcpsdk.CallToolResult, OverlapOutput, error) {
	raw, err := base64.StdEncoding.DecodeString(args.Image)
	if err != nil {
		return nil, OverlapOutput{}, fmt.Errorf("image is not valid base64: %w", err)
	}
	img, err := output.DecodeImage(bytes.NewReader(raw))
	if err != nil {
		return nil, OverlapOutput{}, fmt.Errorf("decode image: %w", err)
	}
	frame := capture.NewFrame(img)
	res, err := s.c.Scroll.HandleImage(frame)
	if err != nil {
		return nil, OverlapOutput{}, err
	}
	return nil, s.overlapOutput(frame, res.Offset, res.NewRows(frame.Height()), res.Confidence, res.Duplicate), nil
}

func (s *MCPServer) overlapOutput(frame capture.Frame, offset, newRows int, confidence float64, dup bool) OverlapOutput {
	w, h := s.c.Scroll.Size()
	return OverlapOutput{
		Sequence:   frame.Sequence,
		Offset:     offset,
		NewRows:    newRows,
		Confidence: confidence,
		Duplicate:  dup,
		Width:      w,
		Height:     h,
	}
}

func (s *MCPServer) handleGetSize(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, SizeOutput, error) {
	w, h := s.c.Scroll.Size()
	return nil, SizeOutput{Width: w, Height: h, State: s.c.Scroll.State().String()}, nil
}

func (s *MCPServer) handleGetImageData(_ context.Context, _ *mcpsdk.CallToolRequest, args ImageDataInput) (*mcpsdk.CallToolResult, ImageDataOutput, error) {
	maxWidth := args.MaxWidth
	if maxWidth <= 0 {
		maxWidth = s.c.Config.PreviewMaxWidth
	}
	data, err := s.c.Scroll.ImageData(maxWidth)
	if err != nil {
		return nil, ImageDataOutput{}, err
	}
	w, h := s.c.Scroll.Size()
	result := &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.ImageContent{Data: data, MIMEType: "image/png"},
		},
	}
	return result, ImageDataOutput{Width: w, Height: h, Bytes: len(data)}, nil
}

func (s *MCPServer) handleSaveToFile(_ context.Context, _ *mcpsdk.CallToolRequest, args SaveFileInput) (*mcpsdk.CallToolResult, SaveOutput, error) {
	path := args.Path
	if path == "" {
		path = s.c.DefaultOutputPath(time.Now())
	}
	if err := s.c.Scroll.SaveToFile(path, args.Format); err != nil {
		return nil, SaveOutput{}, err
	}
	w, h := s.c.Scroll.Size()
	return nil, SaveOutput{Path: path, Width: w, Height: h}, nil
}

func (s *MCPServer) handleSaveToClipboard(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, SaveOutput, error) {
	if err := s.c.Scroll.SaveToClipboard(); err != nil {
		return nil, SaveOutput{}, err
	}
	w, h := s.c.Scroll.Size()
	return nil, SaveOutput{Width: w, Height: h}, nil
}

func (s *MCPServer) handleFinish(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StateOutput, error) {
	if err := s.c.Scroll.Finish(); err != nil {
		return nil, StateOutput{}, err
	}
	return nil, StateOutput{State: s.c.Scroll.State().String()}, nil
}

func (s *MCPServer) handleClear(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StateOutput, error) {
	s.c.Scroll.Clear()
	return nil, StateOutput{State: s.c.Scroll.State().String()}, nil
}

func (s *MCPServer) handleStats(_ context.Context, _ *mcpsdk.CallToolRequest, _ EmptyInput) (*mcpsdk.CallToolResult, StatsOutput, error) {
	st := s.c.Scroll.Stats()
	return nil, StatsOutput{
		SessionID:        st.SessionID,
		State:            st.State.String(),
		Captures:         st.Captures,
		FailedCaptures:   st.FailedCaptures,
		Appended:         st.Appended,
		Duplicates:       st.Duplicates,
		AvgCaptureMicros: st.AvgCaptureMicros,
		Width:            st.Width,
		Height:           st.Height,
		BufferBytes:      st.BufferBytes,
	}, nil
}
