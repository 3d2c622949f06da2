package i18n

import (
	"fmt"

	"learning-chat-service/internal/models"
)

type Key string

const (
	ModuleWelcome            Key = "MODULE_WELCOME"
	NoSegmentsFound          Key = "NO_SEGMENTS_FOUND"
	ModuleComplete           Key = "MODULE_COMPLETE"
	NoMoreSegments           Key = "NO_MORE_SEGMENTS"
	NoInterestSegmentFound   Key = "NO_INTEREST_SEGMENT_FOUND"
	NoCurrentInterestSegment Key = "NO_CURRENT_INTEREST_SEGMENT"
	NoExercisesFound         Key = "NO_EXERCISES_FOUND"
	AllExercisesCompleted    Key = "ALL_EXERCISES_COMPLETED"
	ExerciseCompleted        Key = "EXERCISE_COMPLETED"
	DontKnowFeedback         Key = "DONT_KNOW_FEEDBACK"
	ModuleReviewPrompt       Key = "MODULE_REVIEW_PROMPT"
	ReviewNoExercises        Key = "REVIEW_NO_EXERCISES"
	ReviewNoAttempts         Key = "REVIEW_NO_ATTEMPTS"
	ReviewNoMistakes         Key = "REVIEW_NO_MISTAKES"
	ReviewMoreMistakes       Key = "REVIEW_MORE_MISTAKES"
)

// catalog holds one fmt template per key per language. Missing languages fall
// back to English.
var catalog = map[Key]map[models.Language]string{
	ModuleWelcome: {
		models.LangEnglish: "Welcome to the module: %s. This module contains %d segments.",
		models.LangKazakh:  "Модульге қош келдіңіз: %s. Бұл модульде %d сегмент бар.",
		models.LangRussian: "Добро пожаловать в модуль: %s. Этот модуль содержит %d сегментов.",
	},
	NoSegmentsFound: {
		models.LangEnglish: "No published segments found for module %d.",
		models.LangKazakh:  "Модуль %d үшін жарияланған сегменттер табылмады.",
		models.LangRussian: "Опубликованные сегменты для модуля %d не найдены.",
	},
	ModuleComplete: {
		models.LangEnglish: "All segments in this module have been completed. Module is complete!",
		models.LangKazakh:  "Бұл модульдегі барлық сегменттер аяқталды. Модуль аяқталды!",
		models.LangRussian: "Все сегменты в этом модуле завершены. Модуль завершен!",
	},
	NoMoreSegments: {
		models.LangEnglish: "No more available segments in this module.",
		models.LangKazakh:  "Бұл модульде басқа сегменттер жоқ.",
		models.LangRussian: "В этом модуле больше нет доступных сегментов.",
	},
	NoInterestSegmentFound: {
		models.LangEnglish: "No interest segment found for segment %d with selected interest.",
		models.LangKazakh:  "Таңдалған қызығушылық бойынша %d сегменті үшін қызығушылық сегменті табылмады.",
		models.LangRussian: "Для сегмента %d не найден сегмент интереса с выбранным интересом.",
	},
	NoCurrentInterestSegment: {
		models.LangEnglish: "No current interest segment found. Please get the next segment first.",
		models.LangKazakh:  "Ағымдағы қызығушылық сегменті табылмады. Алдымен келесі сегментті алыңыз.",
		models.LangRussian: "Текущий сегмент интереса не найден. Пожалуйста, сначала получите следующий сегмент.",
	},
	NoExercisesFound: {
		models.LangEnglish: "No exercises found for interest segment %d.",
		models.LangKazakh:  "Қызығушылық сегменті %d үшін жаттығулар табылмады.",
		models.LangRussian: "Упражнения для сегмента интереса %d не найдены.",
	},
	AllExercisesCompleted: {
		models.LangEnglish: "All exercises for this segment have been completed. Please get the next segment.",
		models.LangKazakh:  "Бұл сегменттегі барлық жаттығулар аяқталды. Келесі сегментті алыңыз.",
		models.LangRussian: "Все упражнения для этого сегмента завершены. Пожалуйста, получите следующий сегмент.",
	},
	ExerciseCompleted: {
		models.LangEnglish: "Exercise completed! Score: %d%%",
		models.LangKazakh:  "Жаттығу аяқталды! Ұпай: %d%%",
		models.LangRussian: "Упражнение завершено! Балл: %d%%",
	},
	DontKnowFeedback: {
		models.LangEnglish: `Marked as "I don't know". Score: 0%%.`,
		models.LangKazakh:  `"Білмеймін" деп белгіленді. Ұпай: 0%%.`,
		models.LangRussian: `Отмечено как "Не знаю". Балл: 0%%.`,
	},
	ModuleReviewPrompt: {
		models.LangEnglish: "Module completed. Your mistakes:\n%s\nWant to review them with an AI tutor?",
		models.LangKazakh:  "Модуль аяқталды. Қателеріңіз:\n%s\nОларды ЖИ репетитормен қарап шығуға дайынсыз ба?",
		models.LangRussian: "Модуль завершён. Ваши ошибки:\n%s\nХотите разобрать их с ИИ репетитором?",
	},
	ReviewNoExercises: {
		models.LangEnglish: "No exercises in module.",
		models.LangKazakh:  "Модульде жаттығулар жоқ.",
		models.LangRussian: "В модуле нет упражнений.",
	},
	ReviewNoAttempts: {
		models.LangEnglish: "No exercises attempted yet.",
		models.LangKazakh:  "Әлі бірде-бір жаттығу орындалмады.",
		models.LangRussian: "Пока ни одно упражнение не выполнено.",
	},
	ReviewNoMistakes: {
		models.LangEnglish: "No notable mistakes — great job!",
		models.LangKazakh:  "Елеулі қателер жоқ — өте жақсы жұмыс!",
		models.LangRussian: "Существенных ошибок нет — отличная работа!",
	},
	ReviewMoreMistakes: {
		models.LangEnglish: "… %d more below %d%%.",
		models.LangKazakh:  "… тағы %d жаттығу %d%%-дан төмен.",
		models.LangRussian: "… ещё %d ниже %d%%.",
	},
}

// Message renders the template for key in lang, falling back to English when
// the language has no entry.
func Message(key Key, lang models.Language, args ...interface{}) string {
	templates, ok := catalog[key]
	if !ok {
		return string(key)
	}
	tmpl, ok := templates[lang]
	if !ok {
		tmpl = templates[models.LangEnglish]
	}
	return fmt.Sprintf(tmpl, args...)
}
