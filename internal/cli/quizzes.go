package cli

import "eduquest-progress/internal/domain"

// bundledQuizzes is the content shipped with the app; Postgres takes over
// once seeded.
func bundledQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"math-basics-quiz-1": {
			ID:               "math-basics-quiz-1",
			Title:            "Math Basics - Quiz 1",
			Subject:          "Mathematics",
			TimeLimitSeconds: 1800,
			PassingScore:     70,
			Questions: []domain.Question{
				{
					ID:          "1",
					Prompt:      "What is 15 + 27?",
					Difficulty:  "easy",
					Explanation: "15 + 27 = 42",
					Kind: domain.MultipleChoice{
						Options:       []domain.Option{{ID: "a", Text: "41"}, {ID: "b", Text: "42"}, {ID: "c", Text: "43"}, {ID: "d", Text: "44"}},
						CorrectOption: "b",
					},
				},
				{
					ID:          "2",
					Prompt:      "Is 17 a prime number?",
					Difficulty:  "medium",
					Explanation: "17 is only divisible by 1 and itself.",
					Kind:        domain.TrueFalse{Correct: true},
				},
				{
					ID:          "3",
					Prompt:      "What is 8 × 7?",
					Difficulty:  "easy",
					Explanation: "8 × 7 = 56",
					Kind: domain.MultipleChoice{
						Options:       []domain.Option{{ID: "a", Text: "56"}, {ID: "b", Text: "54"}, {ID: "c", Text: "58"}, {ID: "d", Text: "64"}},
						CorrectOption: "a",
					},
				},
				{
					ID:         "4",
					Prompt:     "Explain the order of operations in mathematics.",
					Difficulty: "medium",
					Points:     2,
					Kind:       domain.TextInput{SampleAnswer: "Parentheses, exponents, multiplication and division, addition and subtraction."},
				},
				{
					ID:          "5",
					Prompt:      "What is 144 ÷ 12?",
					Difficulty:  "easy",
					Explanation: "144 ÷ 12 = 12",
					Kind: domain.MultipleChoice{
						Options:       []domain.Option{{ID: "a", Text: "11"}, {ID: "b", Text: "13"}, {ID: "c", Text: "12"}, {ID: "d", Text: "14"}},
						CorrectOption: "c",
					},
				},
			},
		},
	}
}
