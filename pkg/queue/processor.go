package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/ctxengine/pkg/agentreg"
	"github.com/codeready-toolchain/ctxengine/pkg/ctxapi"
	"github.com/codeready-toolchain/ctxengine/pkg/ctxerr"
	"github.com/codeready-toolchain/ctxengine/pkg/frame"
	"github.com/codeready-toolchain/ctxengine/pkg/ids"
	"github.com/codeready-toolchain/ctxengine/pkg/node"
	"github.com/codeready-toolchain/ctxengine/pkg/providerreg"
	"github.com/codeready-toolchain/ctxengine/pkg/view"
)

// maxFileContextBytes caps how much of a file node's content is
// included in prompt context before truncation.
const maxFileContextBytes = 128 * 1024

// maxDirectoryFallbackFrames bounds the directory-node fallback to the
// node's own recent frames when no child context exists.
const maxDirectoryFallbackFrames = 10

// MetadataBuilder is the pluggable pure function that produces a
// generated frame's metadata. Its output is validated against the
// frame write contract (via ctxapi.PutFrame) before any storage I/O.
type MetadataBuilder func(agentID, providerName, model, providerTypeSlug, userPrompt string) map[string]string

// DefaultMetadataBuilder stamps the frame with its required agent_id
// plus provenance fields useful for debugging generation output. It
// never sets the reserved "deleted" key.
func DefaultMetadataBuilder(agentID, providerName, model, providerTypeSlug, _ string) map[string]string {
	return map[string]string{
		frame.ReservedMetadataAgentID: agentID,
		"provider":                    providerName,
		"model":                       model,
		"provider_type":               providerTypeSlug,
	}
}

// RequestProcessor runs the provider round trip and stores the
// resulting frame. Implemented by *Processor; an interface so tests
// and the retry loop can substitute fakes.
type RequestProcessor interface {
	Process(ctx context.Context, req *Request) (ids.FrameID, error)
}

// Processor drives one provider round trip per request, wiring the
// agent registry, provider registry, and Context API together for the
// generation queue.
type Processor struct {
	API       *ctxapi.Service
	Agents    *agentreg.Registry
	Providers *providerreg.Registry
	Files     FileReader

	// MetadataBuilder defaults to DefaultMetadataBuilder when nil.
	MetadataBuilder MetadataBuilder
}

func (p *Processor) metadataBuilder() MetadataBuilder {
	if p.MetadataBuilder != nil {
		return p.MetadataBuilder
	}
	return DefaultMetadataBuilder
}

// Process implements RequestProcessor.
func (p *Processor) Process(ctx context.Context, req *Request) (ids.FrameID, error) {
	var zero ids.FrameID

	if !req.Options.Force {
		if frameID, ok := p.API.GetHead(req.NodeID, req.FrameType); ok {
			return frameID, nil
		}
	}

	agent, err := p.Agents.Get(req.AgentID)
	if err != nil {
		return zero, ctxerr.Wrap(ctxerr.KindConfigError, err, "agent %q is not registered", req.AgentID)
	}
	if err := agent.ValidatePromptContract(); err != nil {
		return zero, err
	}

	providerCfg, err := p.Providers.Get(req.ProviderName)
	if err != nil {
		return zero, err
	}
	client, err := p.Providers.CreateClient(req.ProviderName)
	if err != nil {
		return zero, err
	}

	rec, err := p.API.Nodes.Get(ctx, req.NodeID)
	if err != nil || rec.IsTombstoned() {
		return zero, ctxerr.NodeNotFound(req.NodeID)
	}

	promptContext, err := p.collectPromptContext(ctx, req, rec)
	if err != nil {
		return zero, err
	}

	nodeTypeStr := "file"
	if rec.NodeType == node.TypeDirectory {
		nodeTypeStr = "directory"
	}
	userPrompt := agent.RenderUserPrompt(rec.Path, nodeTypeStr, rec.Size)

	userMessage := userPrompt
	if promptContext != "" {
		userMessage = promptContext + "\n\n" + userPrompt
	}

	messages := []providerreg.Message{
		{Role: providerreg.RoleSystem, Content: agent.Metadata[agentreg.MetaSystemPrompt]},
		{Role: providerreg.RoleUser, Content: userMessage},
	}

	result, err := client.Complete(ctx, messages, providerCfg.DefaultOptions)
	if err != nil {
		if ctxerr.Is(err, ctxerr.KindProviderModelNotFound) {
			if models, listErr := client.ListModels(ctx); listErr == nil {
				err = ctxerr.New(ctxerr.KindProviderModelNotFound, "%s (available models: %s)", err.Error(), strings.Join(models, ", "))
			}
		}
		return zero, err
	}

	metadata := p.metadataBuilder()(req.AgentID, req.ProviderName, result.Model, string(providerCfg.ProviderType), userPrompt)

	basis := ids.NodeBasis(req.NodeID)
	fr := &frame.Frame{
		FrameID:   ids.ComputeFrameID(basis, []byte(result.Content), req.FrameType, req.AgentID),
		Basis:     basis,
		Content:   []byte(result.Content),
		FrameType: req.FrameType,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	return p.API.PutFrame(ctx, req.NodeID, fr, req.AgentID)
}

// collectPromptContext gathers the prompt context for req's node:
// file content for file nodes, child frames for directories.
func (p *Processor) collectPromptContext(ctx context.Context, req *Request, rec *node.Record) (string, error) {
	if rec.NodeType == node.TypeFile {
		return p.collectFileContext(ctx, rec)
	}
	return p.collectDirectoryContext(ctx, req, rec)
}

func (p *Processor) collectFileContext(ctx context.Context, rec *node.Record) (string, error) {
	if p.Files == nil {
		return "", nil
	}
	content, err := p.Files.ReadFile(ctx, rec.Path)
	if err != nil {
		return "", ctxerr.Wrap(ctxerr.KindStorageError, err, "reading file %q", rec.Path)
	}

	truncated := false
	if len(content) > maxFileContextBytes {
		content = content[:maxFileContextBytes]
		truncated = true
	}

	text := fmt.Sprintf("Path: %s\nType: File\nContent:\n%s", rec.Path, string(content))
	if truncated {
		text += "\n...[truncated]"
	}
	return text, nil
}

func (p *Processor) collectDirectoryContext(ctx context.Context, req *Request, rec *node.Record) (string, error) {
	sameTypeAgent := []view.Filter{{ByType: req.FrameType}, {ByAgent: req.AgentID}}

	var parts []string
	for _, child := range rec.Children {
		frames, err := p.API.Compose(ctx, child, view.Policy{
			MaxFrames: 1,
			Ordering:  view.OrderingRecency,
			Filters:   sameTypeAgent,
		})
		if err != nil || len(frames) == 0 || len(frames[0].Content) == 0 {
			continue
		}
		parts = append(parts, string(frames[0].Content))
	}

	if len(parts) == 0 {
		frames, err := p.API.Compose(ctx, req.NodeID, view.Policy{
			MaxFrames: maxDirectoryFallbackFrames,
			Ordering:  view.OrderingRecency,
			Filters:   sameTypeAgent,
		})
		if err == nil {
			for _, fr := range frames {
				parts = append(parts, string(fr.Content))
			}
		}
	}

	if len(parts) == 0 {
		return "", nil
	}
	return strings.Join(parts, "\n\n---\n\n"), nil
}
