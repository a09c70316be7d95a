package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

var intentNames = map[string]discordgo.Intent{
	"guilds":                   discordgo.IntentsGuilds,
	"guild_members":            discordgo.IntentsGuildMembers,
	"guild_messages":           discordgo.IntentsGuildMessages,
	"guild_message_reactions":  discordgo.IntentsGuildMessageReactions,
	"direct_messages":          discordgo.IntentsDirectMessages,
	"direct_message_reactions": discordgo.IntentsDirectMessageReactions,
	"message_content":          discordgo.IntentsMessageContent,
}

// ParseIntents combines intent names as written in the config file.
func ParseIntents(names []string) (discordgo.Intent, error) {
	var intents discordgo.Intent
	for _, name := range names {
		i, ok := intentNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown intent %q", name)
		}
		intents |= i
	}
	return intents, nil
}
