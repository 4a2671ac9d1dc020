package query

import "fmt"

const systemPrompt = "You are a helpful school admin assistant. Answer only from the information provided. " +
	"If the information is not there, say so clearly."

func buildAskPrompt(contextText, question string) string {
	return fmt.Sprintf(`Based on today's information, answer the following question concisely.

TODAY'S INFORMATION:
%s

QUESTION: %s

Provide a direct, concise answer.`, contextText, question)
}

func buildSummaryPrompt(contextText string) string {
	return fmt.Sprintf(`Summarize the MAIN POINTS of the following school information entries.

Format the response as bullet points grouped by category when there is more than one category.
Focus on names, times, classes and rooms. Be concise but complete.

TODAY'S ENTRIES:
%s`, contextText)
}
