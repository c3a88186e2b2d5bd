package dialog

// User-facing reply texts. Kept in one place so transports and tests
// share the exact wording.
const (
	msgWelcome = "Hi!\n" +
		"I collect live ratings for lectures, from 0 to 10.\n" +
		"It only takes a moment to set up."

	msgReady = "I'm ready to record your ratings.\n" +
		"Send /help for a rundown."

	msgHelp = "The scale: 0 means all good, 10 means unbearable.\n" +
		"You can submit as many ratings as you like.\n\n" +
		"The command menu lists everything I understand.\n" +
		"Use \"Change topic\" to switch topics and \"Current topic\" to see the active one.\n\n" +
		"Anything else you type in this chat is recorded as your rating."

	msgTypeInstitution = "Type the name of your institution."
	msgPickInstitution = "Pick your institution from the list or type a new one."
	msgTypeTopic       = "Type the name of the topic."
	msgPickTopic       = "Pick a topic from the list or type a new one."

	msgConfirmFor = "Every rating from now on will be recorded for %s."

	msgCurrentInstitution = "Current institution: %s"
	msgCurrentTopic       = "Current topic: %s"
	msgYourInstitution    = "Your institution is %s."
	msgYourTopic          = "Your topic is %s."

	msgRecorded    = "Recorded %d for %s at %s."
	msgScoreRange  = "The scale goes from 0 to 10."
	msgExpectScore = "Send me your current rating, a whole number from 0 to 10."

	msgMaybeScoreInstitution = "Looks like you meant to send a rating. Cancel or finish picking your institution first."
	msgMaybeScoreTopic       = "Looks like you meant to send a rating. Cancel or finish picking your topic first."

	msgNeedInstitution = "Pick your institution first: send /start to continue setup."
	msgNeedTopic       = "Pick a topic first: send /start to continue setup."
	msgFinishSetup     = "Finish picking your institution and topic first."

	msgBroadcast = "Hi! I've been updated and got easier to use.\n" +
		"Send /start so I can refresh your setup."
)
