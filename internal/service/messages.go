package service

// User-facing texts. Formatted ones take the session URL unless noted.
const (
	msgWelcome = "👋 Welcome to the Devin Telegram Bot!\n\n" +
		"I can help you interact with Devin AI directly from Telegram.\n\n" +
		"🚀 To get started, simply send me a message describing what you want Devin to do.\n\n" +
		"Type /help to see all available commands."

	msgHelp = "🤖 Devin Telegram Bot - Help\n\n" +
		"Available commands:\n\n" +
		"/start - Welcome message and introduction\n" +
		"/help - Show this help message\n" +
		"/status - Check the status of your current session\n" +
		"/new - Start a new session (clears the current one)\n" +
		"/reset - Reset your current session\n\n" +
		"How to use:\n" +
		"1. Send a message describing what you want Devin to do\n" +
		"2. Wait for Devin to process your request\n" +
		"3. Send follow-up messages to provide more information\n" +
		"4. Use /status to check progress at any time"

	msgCreating = "🔄 Creating a new Devin session for you..."

	msgSessionCreated = "🚀 Session created!\n\n" +
		"🔗 View in browser: %s\n\n" +
		"Devin is now processing your request. I'll update you when there's progress.\n\n" +
		"Use /status to check the current status or /help for more commands."

	msgCreateFailed = "❌ Failed to create a Devin session. Please try again later.\n\n" +
		"If the problem persists, please check your Devin API key."

	msgMessageSent = "✅ Message sent to Devin. I'll update you when there's progress.\n\n" +
		"Use /status to check the current status or /help for more commands."

	msgSendFailed = "❌ Sorry, there was an error processing your request. Please try again later.\n\n" +
		"If the problem persists, you can try /reset to start a new session."

	msgSessionExpired = "⌛ Your previous session was idle for too long, so I'm starting a fresh one."

	msgStoreUnavailable = "❌ I couldn't reach the session store right now. Please try again in a moment.\n\n" +
		"If the problem persists, you can try /reset to start a new session."

	msgNoActiveSession = "❌ You don't have an active session.\n\n" +
		"Send a message to create a new Devin session."

	msgStatusFailed = "❌ Failed to get session status. The session might have expired.\n\n" +
		"You can use /reset to start a new session."

	msgReady = "🆕 Ready to start a new session!\n\n" +
		"Please send a message describing what you want Devin to do."

	msgReset = "🔄 Your session has been reset.\n\n" +
		"You can start a new conversation with Devin by sending a message."

	msgResetNoSession = "You don't have an active session."

	msgSessionCompleted = "✅ Session completed!\n\n" +
		"🔗 View results: %s\n\n" +
		"To start a new session, use /new or just send a new message."

	msgSessionBlocked = "⚠️ Devin needs your input!\n\n" +
		"🔗 Please check the session: %s\n\n" +
		"Or send a message here with your response."
)
