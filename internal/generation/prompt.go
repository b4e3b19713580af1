package generation

import "strings"

// namePrompt asks for a Naver Smart Store SEO title.
func namePrompt(name, category string) string {
	var sb strings.Builder
	sb.WriteString("당신은 네이버 스마트스토어 상품명 SEO 전문가입니다.\n\n")
	sb.WriteString("아래 원본 상품명을 네이버 쇼핑 검색에 최적화된 한국어 상품명으로 변환해주세요.\n\n")
	sb.WriteString("규칙:\n")
	sb.WriteString("- 50자 이내로 작성\n")
	sb.WriteString("- 핵심 키워드를 앞쪽에 배치\n")
	sb.WriteString("- 불필요한 특수문자, 영문 브랜드명(한국어 대체 가능한 경우) 제거\n")
	sb.WriteString("- 소비자가 자주 검색하는 자연스러운 키워드 조합 사용\n")
	sb.WriteString("- 카테고리가 주어지면 관련 검색 키워드 포함\n\n")
	sb.WriteString("원본 상품명: " + name + "\n")
	if category != "" {
		sb.WriteString("카테고리: " + category + "\n")
	}
	sb.WriteString("\n최적화된 상품명만 출력하세요. 다른 설명은 불필요합니다.")
	return sb.String()
}

// coverPrompt asks for a clean studio-style product cover.
func coverPrompt(name string) string {
	var sb strings.Builder
	sb.WriteString("이 상품 이미지를 참고하여, 네이버 스마트스토어에 적합한 전문적인 e-commerce 커버 이미지를 생성해주세요.\n\n")
	sb.WriteString("요구사항:\n")
	sb.WriteString("- 깔끔한 흰색 또는 밝은 배경\n")
	sb.WriteString("- 상품을 중앙에 배치하고 크게 표시\n")
	sb.WriteString("- 전문적인 스튜디오 촬영 느낌\n")
	sb.WriteString("- 텍스트나 워터마크 없이 상품 이미지만\n")
	if name != "" {
		sb.WriteString("- 상품명: " + name + "\n")
	}
	sb.WriteString("\n고품질 상품 이미지를 생성해주세요.")
	return sb.String()
}
