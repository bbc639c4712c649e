package steps

// TextKind selects which video field a text generation fills.
type TextKind string

const (
	TextTitle       TextKind = "title"
	TextDescription TextKind = "description"
)

const titleSystemPrompt = `Your task is to generate an SEO-focused title for a YouTube video based on its transcript. Please follow these guidelines:
- Be concise but descriptive, using relevant keywords to improve discoverability.
- Highlight the most compelling or unique aspect of the video content.
- Avoid jargon or overly complex language unless it directly supports searchability.
- Use action-oriented phrasing or clear value propositions where applicable.
- Ensure the title is 3-8 words long and no more than 100 characters.
- ONLY return the title as plain text. Do not add quotes or any additional formatting.`

const descriptionSystemPrompt = `Your task is to summarize the transcript of a video. Please follow these guidelines:
- Be brief. Condense the content into a summary that captures the key points and main ideas without losing important details.
- Avoid jargon or overly complex language unless necessary for the context.
- Focus on the most critical information, ignoring filler, repetitive statements, or irrelevant tangents.
- ONLY return the summary, no other text, annotations, or comments.
- Aim for a summary that is 3-5 sentences long and no more than 200 characters.`

// SystemPrompt returns the fixed instruction for kind.
func SystemPrompt(kind TextKind) string {
	if kind == TextDescription {
		return descriptionSystemPrompt
	}
	return titleSystemPrompt
}

// maxChars caps generated text at the length the prompt asks for.
func maxChars(kind TextKind) int {
	if kind == TextDescription {
		return 200
	}
	return 100
}
