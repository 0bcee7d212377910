package generate

import (
	"fmt"
	"strings"

	"github.com/sigongjoa/exam-builder/internal/problem"
)

const systemPrompt = "너는 한국 중고등학교 수학 교사이다. 요청한 JSON 객체 하나만 응답하고 다른 설명은 쓰지 마."

func difficultyWord(d problem.Difficulty) string {
	switch d {
	case problem.DifficultyLow:
		return "쉬운"
	case problem.DifficultyHigh:
		return "어려운"
	default:
		return "보통 난이도"
	}
}

func patternPhrase(pattern string) string {
	if pattern == "" {
		return ""
	}
	return pattern + " 유형의 "
}

func multipleChoicePrompt(r Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "너는 %s %s (%s) 단원의 전문 교사이다.\n", r.Subject, r.ChapterName, r.ChapterCode)
	fmt.Fprintf(&b, "학생들을 위한 고품질의 %s %s객관식 수학 문제 1개를 생성해 줘.\n", difficultyWord(r.Difficulty), patternPhrase(r.PatternName))
	b.WriteString("문제는 반드시 5지선다 형태로 출제해야 하며, 각 보기는 JSON 배열로 제공되어야 해.\n")
	b.WriteString("정답은 1에서 5 사이의 숫자로 명시해야 하며, 자세한 풀이 과정을 포함해야 해.\n")
	b.WriteString("수식은 KaTeX 형식으로 써 줘.\n\n")
	b.WriteString(`형식: {"question": "문제", "choices": ["보기1", "보기2", "보기3", "보기4", "보기5"], "answer": "1", "solution": "풀이"}`)
	return b.String()
}

func descriptivePrompt(r Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "너는 %s %s (%s) 단원의 전문 교사이다.\n", r.Subject, r.ChapterName, r.ChapterCode)
	fmt.Fprintf(&b, "학생들을 위한 고품질의 %s %s서술형 수학 문제 1개를 생성해 줘.\n", difficultyWord(r.Difficulty), patternPhrase(r.PatternName))
	b.WriteString("문제에 대한 정확한 정답과 단계별 풀이 과정을 반드시 포함해야 해.\n")
	b.WriteString("수식은 KaTeX 형식으로 써 줘.\n\n")
	b.WriteString(`형식: {"question": "문제", "answer": "정답", "solution_steps": ["1단계", "2단계"], "solution": "전체 풀이 요약"}`)
	return b.String()
}

func variantPrompt(p *problem.Problem) string {
	var b strings.Builder
	b.WriteString("다음 수학 문제의 숫자만 변경하여 같은 유형의 변형 문제를 만들어줘. ")
	b.WriteString("문제 구조와 풀이 방법은 동일하게 유지하고 숫자만 바꿔라.\n\n")
	fmt.Fprintf(&b, "원본 문제: %s\n", p.Question)
	if len(p.Choices) > 0 {
		fmt.Fprintf(&b, "원본 보기: %s\n", strings.Join(p.Choices, " | "))
	}
	fmt.Fprintf(&b, "원본 정답: %s\n\n", p.Answer)
	if p.Type == problem.TypeMultipleChoice {
		b.WriteString(`형식: {"question": "문제", "choices": ["보기1", "보기2", "보기3", "보기4", "보기5"], "answer": "1", "solution": "풀이"}`)
	} else {
		b.WriteString(`형식: {"question": "문제", "answer": "정답", "solution": "풀이"}`)
	}
	return b.String()
}

func conceptPrompt(solution string) string {
	var b strings.Builder
	b.WriteString("다음 수학 풀이에서 사용된 수학적 개념, 성질, 공식을 추출해줘.\n")
	b.WriteString("각 항목은 {\"name\": \"개념명\", \"confidence\": 0.0~1.0} 형식이어야 해.\n")
	b.WriteString("개념명은 '√x² = |x| 변환 규칙', '피타고라스 정리', '인수분해 합차공식' 같이 구체적으로 써줘.\n\n")
	fmt.Fprintf(&b, "풀이: %s\n\n", solution)
	b.WriteString(`형식: {"concepts": [{"name": "개념명", "confidence": 0.9}]}`)
	return b.String()
}
