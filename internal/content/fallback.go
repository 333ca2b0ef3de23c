package content

// FallbackSource is the Post.Source value for built-in content.
const FallbackSource = "fallback"

// Fallback returns a random entry from the built-in pool. Used when the
// sources are unreachable or deliberately skipped.
func (f *Fetcher) Fallback() Post {
	f.mu.Lock()
	msg := fallbackMessages[f.rng.Intn(len(fallbackMessages))]
	f.mu.Unlock()
	return Post{Content: msg, Source: FallbackSource}
}

var fallbackMessages = []string{
	"The only way to do great work is to love what you do. 💪",
	"Success is not final, failure is not fatal: it is the courage to continue that counts. 🚀",
	"The future belongs to those who believe in the beauty of their dreams. 🌈",
	"Life is what happens while you're busy making other plans. ✨",
	"Sometimes the best content is the simplest content. Have a great day! 🌟",
	"The journey of a thousand miles begins with one step. 🚶",
	"The mind is everything. What you think you become. 🧠",
	"Happiness is not something ready-made. It comes from your own actions. 😊",
	"Take life day by day and be grateful for the little things. 🙏",
	"Don't wait for the perfect moment, take the moment and make it perfect. ⏰",
	"The best way to predict the future is to create it. 🔮",
	"Dream big, work hard, stay focused, and surround yourself with good people. 👥",
	"You are capable of amazing things. Believe in yourself! 💫",
	"Every day is a new beginning. Take a deep breath and start again. 🌅",
	"Your potential is limitless. Keep pushing forward! 🚀",
	"Today is your day to shine! ✨",
	"Coffee: because adulting is hard. ☕",
	"Life is short, make it sweet! 🍭",
	"Laughter is the best medicine. Keep smiling! 😄",
	"Technology is best when it brings people together. 🤝",
	"Innovation distinguishes between a leader and a follower. 💡",
	"Nature does not hurry, yet everything is accomplished. 🌿",
	"The earth has music for those who listen. 🎶",
	"Creativity is intelligence having fun. 🎨",
	"Every artist was first an amateur. 🎭",
	"Education is not preparation for life; education is life itself. 📚",
	"Knowledge is power, but enthusiasm pulls the switch. ⚡",
	"Learning never exhausts the mind. 🧠",
	"Friends are the family we choose for ourselves. 🤗",
	"Good friends are like stars. You don't always see them, but you know they're always there. ⭐",
}
