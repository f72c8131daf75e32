package stages

import "github.com/holdtalk/holdtalk/internal/pipeline"

// Register adds every canonical stage definition to reg. Called once at
// startup, before any config is loaded, so stage-reference resolution always
// has the full built-in set available.
func Register(reg *pipeline.Registry) error {
	defs := []pipeline.StageDefinition{
		RecordAudioDefinition(),
		TranscribeDefinition(),
		RegexCorrectorDefinition(),
		LLMAgentDefinition(),
		TypeTextDefinition(),
	}
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}
