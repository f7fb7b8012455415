// Package plan turns a source document into a committed, validated slide
// plan. The plan is the single authority every later stage renders from.
package plan

import (
	"fmt"
	"strings"

	"github.com/nanoslide/nanoslide/internal/domain"
)

// BuildPlanPrompt wraps the user's style prompt with the instructions the
// plan model needs to emit a parseable deck plan. The user prompt is
// embedded verbatim.
func BuildPlanPrompt(userPrompt string) string {
	return fmt.Sprintf(`You are an expert presentation designer and narrative stylist.

Analyze the provided PDF document and generate a slide-by-slide presentation
plan in strict JSON format. Fully follow the user's requested style and keep
the entire plan consistent with that style.

## INPUT

user_prompt:
%s

## REQUIREMENTS

1. For each slide, write one single paragraph of story-driven content in the
   user's style. The paragraph must describe a vivid scene with characters,
   actions, emotional tone, environment, and visual atmosphere, detailed
   enough for an image-generation model to visualize precisely.

2. The content must faithfully convey the technical meaning of the
   corresponding part of the document. A reader should be able to reconstruct
   the document's main purpose and reasoning from the full slide sequence.

3. The slides must form a coherent narrative arc: consistent storyline,
   logical progression, no contradictions in style or world setting.

4. Each slide focuses on exactly one core idea, expressed through narrative
   rather than bullet points.

5. Optionally describe the visual transition between consecutive slides in
   the "transitions" array. A transition with "index" i plays between slide i
   and slide i+1.

6. The final output must be valid JSON only. No markdown fences, no comments,
   no explanations, no trailing commas.

## OUTPUT FORMAT (JSON ONLY)

{
  "version": 1,
  "style": "one-line summary of the visual style for the whole deck",
  "slides": [
    {"index": 0, "title": "short title", "content": "one detailed story paragraph"},
    {"index": 1, "title": "short title", "content": "one detailed story paragraph"}
  ],
  "transitions": [
    {"index": 0, "prompt": "how the scene morphs from slide 0 into slide 1"}
  ]
}

Slide indices must start at 0 and be contiguous.`, userPrompt)
}

// BuildSlidePrompt produces the image prompt for one slide. deckStyle is the
// plan-level style line; hasReference signals that a previously rendered
// slide is attached for visual continuity.
func BuildSlidePrompt(slide domain.SlideSpec, deckStyle string, hasReference bool) string {
	style := slide.Style
	if style == "" {
		style = deckStyle
	}

	var b strings.Builder
	b.WriteString("Create a 16:9 presentation slide illustration of the following scene.\n\n")
	if style != "" {
		fmt.Fprintf(&b, "STYLE REQUIREMENTS:\n%s\n\n", style)
	}
	if hasReference {
		b.WriteString("STYLE REFERENCE:\nA reference image is provided. Match its artistic style, character design, color palette, and overall visual language. Only the scene content may differ.\n\n")
	}
	if slide.Title != "" {
		fmt.Fprintf(&b, "TITLE: %s\n\n", slide.Title)
	}
	fmt.Fprintf(&b, "SCENE DESCRIPTION:\n%s\n\nOUTPUT:\nOne high-quality illustration. No text overlays beyond the title.", slide.Content)
	return b.String()
}

// BuildTransitionPrompt produces the video prompt for the segment between
// slides from and to. When the plan carries an authored transition for this
// segment its prompt is used; otherwise a prompt is derived from the two
// slide descriptions.
func BuildTransitionPrompt(p *domain.SlidePlan, index int) string {
	if t, ok := p.Transition(index); ok && t.Prompt != "" {
		return transitionWrapper(t.Prompt)
	}

	from, _ := p.Slide(index)
	to, _ := p.Slide(index + 1)
	desc := fmt.Sprintf("The scene transforms from one moment into the next.\n\nSTARTING SCENE:\n%s\n\nENDING SCENE:\n%s",
		from.Content, to.Content)
	return transitionWrapper(desc)
}

func transitionWrapper(scene string) string {
	return fmt.Sprintf(`Create a short animated transition video between the two provided frames.

## SCENE
%s

## VIDEO REQUIREMENTS
1. Start exactly on the first frame and end exactly on the last frame
2. Bring the scene to life with subtle animation and natural movement
3. Maintain the artistic style of the frames throughout
4. Smooth camera work, gentle pans or zooms where appropriate
5. No text overlays, purely visual storytelling

## OUTPUT
Generate one animated video segment connecting the two frames.`, scene)
}

// ExtractJSON strips markdown code fences the model sometimes wraps around
// its output and returns the bare JSON text.
func ExtractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		return strings.TrimSpace(s)
	}

	// Some models prepend prose. Fall back to the outermost JSON object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
