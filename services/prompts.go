package services

import (
	"fmt"
	"strings"

	"github.com/krshsl/mensetsu/backend/models"
)

const (
	defaultFirstQuestion   = "自己紹介をお願いします。"
	defaultNextQuestion    = "志望動機を教えてください。"
	placeholderFeedback    = "フィードバックのプレースホルダーです。"
	defaultFeedback        = "良い回答でした。"
	summaryFailedText      = "面接のサマリーを生成できませんでした。"
	summaryNoTranscript    = "面接記録が見つからなかったため、サマリーを作成できませんでした。"
	summaryUnavailableText = "面接のサマリーは現在利用できません。"
	audioAnswerPlaceholder = "[音声回答]"
	historyClearedMessage  = "履歴が正常にクリアされました"
)

const (
	personaDefault = "あなたは日本のプロの面接官です。"
	personaFirst   = "あなたはHR（人事）担当者として、候補者の性格、コミュニケーションスキル、基本的なモチベーションを評価する「一次面接」を行っています。"
	personaSecond  = "あなたは部署のマネージャーまたはチームリーダーとして、候補者の専門スキル、経験、チーム適合性を評価する「二次面接」を行っています。"
	personaFinal   = "あなたは役員または社長として、候補者の長期的なカルチャーフィットと入社意欲を評価する「最終面接」を行っています。"
)

func interviewerPersona(interviewType string) string {
	switch {
	case strings.Contains(interviewType, "一次面接"):
		return personaFirst
	case strings.Contains(interviewType, "二次面接"):
		return personaSecond
	case strings.Contains(interviewType, "最終面接"):
		return personaFinal
	}
	return personaDefault
}

func firstQuestionPrompt(interviewType, industry string) string {
	if strings.TrimSpace(interviewType) == "" {
		interviewType = "一般的な面接"
	}
	if strings.TrimSpace(industry) == "" {
		industry = "指定なし"
	}
	persona := interviewerPersona(interviewType)
	return fmt.Sprintf(`%s

以下のコンテキストに基づいて、面接の**最初の質問を1つだけ**、簡潔に日本語で生成してください。

**コンテキスト:**
- **面接タイプ:** %s
- **志望業界 & 職種:** %s

あなたの役割（%s）と、候補者の志望（%s）に最もふさわしい、自然な開始の質問をしてください。
(例: 「自己紹介をお願いします」や「本日はよろしくお願いします。まず、%sを志望された理由を教えていただけますか？」など)

質問文のみを返してください。`, persona, interviewType, industry, persona, industry, industry)
}

const feedbackInstruction = `You are an expert Japanese interview coach (面接コーチ) conducting a realistic but supportive practice interview simulation in Japanese. Your goal is to help the user improve their interview skills for the Japanese job market.

**Your Role:**
* Act as a professional interviewer appropriate for the interview type and industry.
* Provide constructive, actionable feedback after each answer.
* Pay attention to Japanese language use (敬語, 言葉遣い) and offer polite corrections.
* Ask logical follow-up questions based on the answers and the interview flow.

**Feedback:**
1. Briefly acknowledge the answer (e.g. 「ありがとうございます。」).
2. Assess clarity, structure and relevance. For behavioral questions check whether the STAR method (状況、課題、行動、結果) was used.
3. Give 1-2 specific suggestions for improvement.
4. Point out significant errors in politeness level or phrasing.

**Next Question:**
* Generate the next logical question. It may dig deeper into the last answer or move to a new standard topic.
* この面接は標準的な30分を想定しています。約5〜6つの主要な質問が完了したら、面接を締めくくる最終質問（例：「最後に、何か質問はありますか？」）を生成してください。

**Output Format:**
Respond ONLY with a JSON object with two string keys, "feedback" and "next_question", both in Japanese.`

func feedbackPrompt(answer, history string) string {
	var b strings.Builder
	b.WriteString(feedbackInstruction)
	if history != "" {
		b.WriteString("\n\nこれまでの会話:\n")
		b.WriteString(history)
	}
	b.WriteString("\n\n候補者の最新回答:\n")
	b.WriteString(answer)
	return b.String()
}

func nextQuestionPrompt(history string) string {
	return "あなたは日本語のプロの面接官です。以下はこれまでの面接の会話記録です。" +
		"候補者の最新の回答内容を踏まえて、次に質問すべき内容を1つだけ日本語で生成してください。" +
		"フィードバックや解説は出力せず、質問文のみを作成してください。" +
		"この面接は標準的な30分を想定しています。既に約5〜6つの主要な質問が議論されていると判断できる場合は、" +
		"新しい話題の質問ではなく、面接を締めくくる質問（例：「最後に、何か質問はありますか？」）を生成してください。" +
		`必ず次のJSON形式で回答してください: {"next_question": "質問文"}` +
		"\n\nこれまでの会話:\n" + history
}

const summaryInstruction = `あなたは日本語の面接コーチです。以下の面接記録を分析し、要点をまとめたサマリーテキストと、候補者のパフォーマンスを示すスコアを算出してください。

必ず次のJSON形式のみで回答してください（前後に説明やマークダウンを付けないこと）:
{
  "summaryText": "日本語の文章。複数段落可。",
  "overallScore": 0-100 の数値,
  "skills": {
    "logic": 0-100 の数値,
    "specificity": 0-100 の数値,
    "expression": 0-100 の数値,
    "proactive": 0-100 の数値,
    "selfaware": 0-100 の数値
  }
}

スコアは整数または1桁小数で構いません。summaryTextには全体所感、良かった点、改善点、今後のアドバイスを含めてください。`

func summaryPrompt(conversation string) string {
	return summaryInstruction + "\n\n=== 面接記録 ===\n" + conversation + "\n=== 記録ここまで ==="
}

// historyText renders turns as labelled lines for prompts.
func historyText(turns []models.Turn) string {
	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		label := "候補者"
		if turn.Role == models.RoleAI {
			label = "AI面接官"
		}
		lines = append(lines, label+": "+turn.Content)
	}
	return strings.Join(lines, "\n")
}

// nonBlankLines splits model output into trimmed, non-empty lines.
func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// stringField returns the first non-empty string value among keys.
func stringField(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := data[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				return text
			}
		}
	}
	return ""
}
