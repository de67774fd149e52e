package services

import "strings"

const promptTemplate = `Move the person to a carmax garage, dressed like a {superhero} inspired character. Show a {color} {car} in the background. Add caption that reads "2025 Innovation Garage".
Make the entire image cartoon style; avoid any text beyond "Innovation Garage"; family-friendly and inclusive.`

// BuildGenerationPrompt fills the event prompt template with the user's picks.
func BuildGenerationPrompt(superhero, color, car string) string {
	replacer := strings.NewReplacer(
		"{superhero}", superhero,
		"{color}", color,
		"{car}", car,
	)
	return replacer.Replace(promptTemplate)
}
