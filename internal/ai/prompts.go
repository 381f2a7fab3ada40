package ai

import (
	"strings"
	"time"

	"github.com/nhle/mail-assistant/internal/model"
)

const improveDraftPrompt = `You are an expert email communication assistant. Improve the following email draft to be more professional, clear, and effective.

{subject_context}Original Email:
<email>
{content}
</email>

Please provide:
1. An improved version of the email
2. 2-3 specific improvements you made
3. Alternative subject line suggestions (if subject was provided)

Maintain the original intent and key points, but enhance clarity, tone, and professionalism.`

const generateResponsePrompt = `Generate a professional email response to the email below.

Original Email:
<email>
Subject: {subject}
From: {from}
Received: {received}

{content}
</email>

Response Type: {tone}

Generate an appropriate response that:
1. Addresses the key points from the original email
2. Matches the requested tone ({tone})
3. Is professional and clear
4. Maintains appropriate length for the tone type`

const toneAnalysisPrompt = `Analyze the tone and professionalism of this email:

<email>
{content}
</email>

Provide your analysis in the following JSON format only, with no additional text:
{
  "overallTone": "brief description (e.g., formal, casual, urgent)",
  "professionalismScore": number from 1-10,
  "sentiment": "positive" or "negative" or "neutral",
  "strengths": ["strength 1", "strength 2", "strength 3"],
  "improvements": ["improvement 1", "improvement 2", "improvement 3"]
}`

func improvePrompt(content, subject string) string {
	subjectContext := ""
	if strings.TrimSpace(subject) != "" {
		subjectContext = "Subject: " + subject + "\n\n"
	}
	return strings.NewReplacer(
		"{subject_context}", subjectContext,
		"{content}", content,
	).Replace(improveDraftPrompt)
}

func responsePrompt(msg model.Message, tone model.ResponseTone) string {
	content := msg.Body
	if strings.TrimSpace(content) == "" {
		content = msg.BodyPreview
	}
	return strings.NewReplacer(
		"{subject}", msg.Subject,
		"{from}", msg.From.String(),
		"{received}", msg.ReceivedDateTime.Format(time.RFC1123),
		"{content}", content,
		"{tone}", string(tone),
	).Replace(generateResponsePrompt)
}

func tonePrompt(content string) string {
	return strings.Replace(toneAnalysisPrompt, "{content}", content, 1)
}
