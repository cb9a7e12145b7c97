package gemini

// part — фрагмент содержимого запроса или ответа.
// Text == nil — фрагмент без текста (inlineData, functionCall, null).
type part struct {
	Text *string `json:"text"`
}

// content — содержимое с фрагментами.
type content struct {
	Parts []part `json:"parts"`
}

// generateRequest — тело запроса generateContent.
type generateRequest struct {
	Contents []content `json:"contents"`
}

// candidate — вариант ответа модели.
type candidate struct {
	Content *content `json:"content"`
}

// generateResponse — тело успешного ответа generateContent.
type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// apiError — тело ответа с ошибкой Google API.
type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
