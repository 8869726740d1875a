package bot

import "fmt"

// Bot phrasing. One line is picked per action from the injected randomness
// source so tests can pin the exact output.

var missingQuestionMarkLines = []string{
	`I can only treat something as a question if it ends with a "?". Add one and I’ll behave.`,
	`No "?" no magic. Add a question mark and I’ll file it properly.`,
	`I’m a bot, not a mind reader. Toss in a "?" so I know it’s a question.`,
	`Give me a "?" at the end and I’ll switch into answer-machine mode.`,
}

var askForAnswerLines = []string{
	"New question unlocked. Reply with the answer in your next message and I’ll remember it.",
	"I don’t know this one yet. Send the answer next and I’ll store it forever (or until the server restarts).",
	"Fresh mystery. Drop the answer in your next message and I’ll learn it.",
	"I’ve got nothing for that yet. Next message: the answer. I’ll do the remembering.",
}

var savedPrefixes = []string{
	"Saved. Next time someone asks, I’ve got you.",
	"Locked in. I will not forget. Probably.",
	"Stored. I am now 0.001% smarter.",
	"Saved. That knowledge is mine now. Thanks, human.",
}

var updatedPrefixes = []string{
	"Updated. My memory just got a patch.",
	"Edited accepted. Memory rewritten.",
	"Reality has been revised. I have updated the answer.",
	"Version control says: new answer saved.",
}

var rememberedPrefixes = []string{
	"I remember this. The answer is:",
	"Memory check: passed. Answer:",
	"Seen this one before. Answer:",
	"Yep. We already solved this. Answer:",
}

func qaLine(base, question, answer string) string {
	return fmt.Sprintf(`%s Q: "%s" A: "%s"`, base, question, answer)
}

func rememberedLine(intro, answer string) string {
	return fmt.Sprintf(`%s "%s"`, intro, answer)
}
