package metrics

import (
	"context"
	"fmt"

	"github.com/datar-psa/rageval/api"
)

// TopicAdherenceOptions configures the TopicAdherence scorer
type TopicAdherenceOptions struct {
	// Mode defaults to precision
	Mode Mode
}

// TopicAdherence returns a scorer for conversations: it extracts the topics discussed,
// checks whether the AI answered each one, and classifies each topic against the
// reference topics.
//
// precision = answered on-reference / all answered, recall = answered on-reference /
// all on-reference.
func TopicAdherence(llm api.LLMGenerator, opts TopicAdherenceOptions) api.Scorer {
	opts.Mode = opts.Mode.orDefault(ModePrecision)
	return &topicAdherenceScorer{opts: opts, llm: llm}
}

type topicAdherenceScorer struct {
	opts TopicAdherenceOptions
	llm  api.LLMGenerator
}

const topicExtractionInstruction = `List the topics the user raised in the conversation above.
For each topic set verdict to 1 if the AI answered it, 0 if the AI refused or did not answer.`

const topicClassificationTemplate = `Reference topics:
%s

Does the topic "%s" fall under any of the reference topics? Answer yes or no.`

func (s *topicAdherenceScorer) Name() string {
	return fmt.Sprintf("topic_adherence(mode=%s)", s.opts.Mode)
}

func (s *topicAdherenceScorer) Score(ctx context.Context, in api.ScoreInputs) api.Score {
	result := newResult(s.Name())

	if len(in.Turns) == 0 {
		return fail(result, api.ErrNoTurns)
	}
	if len(in.Topics) == 0 {
		return fail(result, api.ErrNoExpectedValue)
	}
	if s.llm == nil {
		return fail(result, fmt.Errorf("LLM generator is required"))
	}

	// the conversation itself is the prompt, followed by the instruction turn
	extraction := append(api.Conversation{}, in.Turns...)
	extraction = append(extraction, api.Human(topicExtractionInstruction))
	resp, err := judge(ctx, s.llm, extraction, objectSchema(map[string]any{
		"topics": verdictArray("topic", "topics raised by the user"),
	}))
	if err != nil {
		return fail(result, err)
	}
	topics, err := verdicts(resp, "topics", "topic")
	if err != nil {
		return fail(result, err)
	}
	if len(topics) == 0 {
		return fail(result, fmt.Errorf("no topics extracted from conversation"))
	}

	// one classification conversation per extracted topic, sent as a single batch
	batch := make(api.Sequence, len(topics))
	for i, topic := range topics {
		batch[i] = api.Sequence{api.Text(fmt.Sprintf(topicClassificationTemplate, numberedList(in.Topics), topic.Text))}
	}
	replies, err := s.llm.Generate(ctx, batch)
	if err != nil {
		return fail(result, fmt.Errorf("%w: %v", api.ErrLLMGenerationFailed, err))
	}
	if len(replies) != len(topics) {
		return fail(result, fmt.Errorf("expected %d classifications, got %d", len(topics), len(replies)))
	}

	var tp, fp, fn int
	classified := make(map[string]bool, len(topics))
	for i, topic := range topics {
		onTopic, ok := parseYesNo(replies[i])
		if !ok {
			return fail(result, fmt.Errorf("could not read classification %q for topic %q", replies[i], topic.Text))
		}
		classified[topic.Text] = onTopic
		switch {
		case topic.OK && onTopic:
			tp++
		case topic.OK && !onTopic:
			fp++
		case !topic.OK && onTopic:
			fn++
		}
	}

	var precision, recall float64
	if tp+fp > 0 {
		precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		recall = float64(tp) / float64(tp+fn)
	}

	result.Score = s.opts.Mode.combine(precision, recall)
	result.Metadata["precision"] = precision
	result.Metadata["recall"] = recall
	result.Metadata["topics"] = classified
	return result
}
