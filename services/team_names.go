package services

import "math/rand"

var randomTeamNames = []string{
	"Quizzical Llamas",
	"Brainstorm Troopers",
	"Trivia Newton John",
	"The Know-It-Owls",
	"Agatha Quiztie",
	"Fact Hunters",
	"Smarty Pints",
	"The Quizzard of Oz",
	"Les Quizerables",
	"Sherlock Homies",
	"Quizteama Aguilera",
	"The Wise Quackers",
	"Risky Quizness",
	"E = MC Hammered",
	"The Brainy Bunch",
	"Victorious Secret",
}

func randomTeamName() string {
	return randomTeamNames[rand.Intn(len(randomTeamNames))]
}
