package refine

import (
	"encoding/json"
	"fmt"
)

// EvidencePrompt asks the default model to distill a retrieved reference
// block into a short excerpt focused on the question.
func EvidencePrompt(question, reference string) string {
	return fmt.Sprintf(`Extract the current evidence from the provided reference text, ensuring it is concise, relevant, and strictly limited to information directly related to the question. The output should be a short paragraph of 3-5 sentences, presenting only the key details in a single block without bullet points. Remain faithful to the original text and avoid adding any interpretations or additional information.

Question: %s
current_reference: %s
`, question, reference)
}

type judgePayload struct {
	Question string `json:"question"`
	Evidence string `json:"evidence"`
}

// JudgePrompt is the structured prompt shared by the strict and loose judges.
func JudgePrompt(question, evidence string) string {
	data, err := json.Marshal(judgePayload{Question: question, Evidence: evidence})
	if err != nil {
		// Marshaling two strings cannot fail.
		panic(err)
	}
	return string(data)
}

// AnswerPrompt asks the default model for the final answer as a JSON object
// with "process" and "final answer" fields.
func AnswerPrompt(question, evidence string) string {
	return fmt.Sprintf(`Based on the following reference information, answer the question in JSON format with "process" and "final answer" fields:

Reference: %s
Question: %s

for the final answer, you should follow these two things:

1. If the question is of a yes/no type (e.g., "am", "is", "are"), only answer "yes" or "no".
2. If the question is about "who", "where", "when", "what", etc., answer with only the relevant information (e.g., name, location, date, etc.), avoiding full sentences.

For example:
The output should be concise and without explanation. Only return the most relevant keywords or key information, formatted as a phrase or value. For example:
- If the question is "Who is the president of the USA?" and the sub-answer mentions "Joe Biden" or "current president", answer only "Joe Biden" or "President Biden".
- If the question is "Is it raining?" and the sub-answer suggests yes or no, answer "yes" or "no".

Output format:
{
    "process": "<your reasoning process here>",
    "final answer": "<your final answer here>"
}
`, evidence, question)
}
