package usecase

import (
	"fmt"
	"strings"

	"github.com/totoufu/archi-input/internal/domain"
)

// The prompts are a fixed contract with the model: answers are always in
// Japanese, and the analyze prompts request a literal JSON object with a
// fixed field set and no formatting fences.

const analyzePromptTemplate = `あなたは建築の専門家です。以下のWebページの情報から建築作品の詳細を抽出し、JSON形式で返してください。

## Webページ情報
- ページタイトル: %s
- OGPタイトル: %s
- OGP説明: %s
- 本文抜粋:
%s

## 出力JSON形式（必ずこの形式で返してください）
` + "```json" + `
{
  "title": "作品名（正式名称）",
  "architect": "設計者/建築家の名前",
  "year": 竣工年（数値、不明なら null）,
  "country": "所在国",
  "city": "所在都市",
  "usage": "用途（住宅/美術館/教会/オフィス/集合住宅/公共施設/商業施設/その他）",
  "structure": "構造種別（RC造/鉄骨造/木造/石造/混構造/その他）",
  "description": "この建築作品の特徴を200〜400字程度で詳しく説明（設計意図、空間構成の特徴、素材・光の使い方、歴史的・建築史的な意義、周辺環境との関係性などに触れてください）"
}
` + "```" + `

注意:
- 情報が不明な場合は null を入れてください
- JSONのみを返してください。コードブロックのマークダウン記法は不要です
- 必ず日本語で回答してください
- 画像が添付されている場合は、外観・ファサード・素材感・プロポーションなどの視覚的特徴もdescriptionに反映してください`

const titleOnlyPromptTemplate = `あなたは建築の専門家です。「%s」という建築作品について知っている情報をJSON形式で返してください。

## 出力JSON形式
` + "```json" + `
{
  "title": "作品名（正式名称）",
  "architect": "設計者",
  "year": 竣工年（数値、不明なら null）,
  "country": "所在国",
  "city": "所在都市",
  "usage": "用途",
  "structure": "構造種別",
  "description": "特徴を200〜400字程度で詳しく説明（設計意図、空間構成、素材、歴史的意義など）"
}
` + "```" + `
JSONのみを返してください。必ず日本語で。`

const deepDivePromptTemplate = `あなたは建築の専門家であり、建築教育者です。

## 対象作品の情報
%s

## ユーザーからの質問・分析指示
%s

## 回答ルール
- 必ず日本語で回答してください
- 建築学的に深い考察を含めてください
- 他の建築作品との比較や関連性にも言及してください
- 具体的なエピソードや技術的詳細を含めてください
- マークダウン形式で、見出しを使って構造的に回答してください
- 1000文字以上を目安に、充実した回答をしてください`

const visualPromptTemplate = `あなたは建築の専門家であり、建築写真の批評家です。
以下の建築物の画像を詳しく分析してください。%s

## 分析してほしい観点
1. **ファサード・外観**: 建物の正面性、開口部のリズム、立面構成
2. **素材・テクスチャ**: 使用されている素材（コンクリート、ガラス、木、石、鉄骨等）とその質感
3. **光と影**: 自然光の取り入れ方、影の演出、照明計画
4. **プロポーション・スケール**: 建物の比例関係、人間との対比、ボリューム感
5. **構造表現**: 構造体が外観にどう現れているか、構造と意匠の関係
6. **周辺環境・ランドスケープ**: 周囲との関係性、アプローチ、配置計画
7. **建築史的位置づけ**: どの建築様式・潮流に属するか、影響を受けた/与えた建築家

## 出力ルール
- 必ず日本語で、マークダウン形式で出力してください
- 各観点に見出しをつけて構造的に記述してください
- 専門用語を使いつつも、学習者にわかりやすく解説してください
- 類似する他の建築作品にも言及してください
- 500〜1000字程度を目安にしてください`

const reportPromptTemplate = `あなたは建築教育の専門家です。以下は、ユーザーが学習した建築事例のリストです。

## 登録済み事例一覧
%s

## ユーザーからの追加指示
%s

## タスク
上記の「ユーザーからの追加指示」がある場合はそれを最優先で反映してください。
指示がない場合は、以下のデフォルト分析を行ってください:

1. **概要統計**: 総数、分析済み数、年代分布、地域分布
2. **偏り分析**: どの年代/国/用途/構造に偏っているか、どこが手薄か
3. **おすすめ**: 次に学ぶべき建築のジャンルや時代を3つ具体的に提案（作品名も含めて）
4. **週間のまとめ**: これまでの学習の傾向と成長ポイント

## 出力ルール
- 必ず日本語で、読みやすいマークダウン形式で出力してください
- 具体的な作品名をなるべく多く挙げてください
- 表面的な分析ではなく、建築学的に深い考察を含めてください
- 1500文字以上を目安にしてください`

func buildAnalyzePrompt(snap domain.Snapshot, fallbackTitle string) string {
	pageTitle := snap.PageTitle
	if pageTitle == "" {
		pageTitle = fallbackTitle
	}
	if pageTitle == "" {
		pageTitle = "不明"
	}

	text := snap.Text
	if text == "" {
		text = fmt.Sprintf("（本文を取得できませんでした。タイトル「%s」のみ提供）", fallbackTitle)
	}

	return fmt.Sprintf(analyzePromptTemplate, pageTitle, snap.OGTitle, snap.OGDescription, text)
}

func buildTitleOnlyPrompt(title string) string {
	return fmt.Sprintf(titleOnlyPromptTemplate, title)
}

func buildDeepDivePrompt(workJSON, question string) string {
	return fmt.Sprintf(deepDivePromptTemplate, workJSON, question)
}

func buildVisualPrompt(titleHint string) string {
	context := ""
	if strings.TrimSpace(titleHint) != "" {
		context = fmt.Sprintf("（作品名: %s）", titleHint)
	}
	return fmt.Sprintf(visualPromptTemplate, context)
}

func buildReportPrompt(worksJSON, customPrompt string) string {
	if strings.TrimSpace(customPrompt) == "" {
		customPrompt = "（特になし）"
	}
	return fmt.Sprintf(reportPromptTemplate, worksJSON, customPrompt)
}
