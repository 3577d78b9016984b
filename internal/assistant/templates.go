package assistant

import "fmt"

// Canned message names. Each can be overridden per language in the
// templates section of intents.yaml.
const (
	TemplateHandoff         = "handoff"
	TemplateEscalated       = "escalated"
	TemplatePaymentAck      = "payment_ack"
	TemplateFallback        = "fallback"
	TemplateDialogCancelled = "dialog_cancelled"
	TemplateStepPrompt      = "step_prompt"
	TemplateDialogDone      = "dialog_done"
)

var builtinTemplates = map[string]map[string]string{
	TemplateHandoff: {
		"en": "I'm not sure I understood. Let me connect you with our team, someone will reply shortly.",
		"ms": "Maaf, saya kurang faham. Saya akan hubungkan anda dengan staf kami, mereka akan membalas sebentar lagi.",
		"zh": "抱歉，我没有完全理解。我会为您转接我们的工作人员，他们很快会回复您。",
	},
	TemplateEscalated: {
		"en": "Thanks for your message. I've passed it to our team and they will get back to you soon.",
		"ms": "Terima kasih atas mesej anda. Saya telah menyampaikannya kepada staf kami dan mereka akan menghubungi anda tidak lama lagi.",
		"zh": "感谢您的留言。我已转交给我们的工作人员，他们会尽快回复您。",
	},
	TemplatePaymentAck: {
		"en": "Thank you! We've received your payment details and our team will confirm shortly.",
		"ms": "Terima kasih! Kami telah menerima butiran pembayaran anda dan staf kami akan mengesahkannya sebentar lagi.",
		"zh": "谢谢！我们已收到您的付款信息，工作人员会尽快确认。",
	},
	TemplateFallback: {
		"en": "Sorry, I'm having trouble answering right now. Our team has been notified and will help you soon.",
		"ms": "Maaf, saya menghadapi masalah untuk menjawab sekarang. Staf kami akan membantu anda tidak lama lagi.",
		"zh": "抱歉，我暂时无法回答。我们的工作人员会尽快为您提供帮助。",
	},
	TemplateDialogCancelled: {
		"en": "No problem, I've cancelled that. Anything else I can help with?",
		"ms": "Baik, saya telah batalkan. Ada apa-apa lagi yang boleh saya bantu?",
		"zh": "好的，已为您取消。还有什么可以帮您的吗？",
	},
	TemplateStepPrompt: {
		"en": "Could you tell me your %s?",
		"ms": "Boleh berikan %s anda?",
		"zh": "请告诉我您的%s。",
	},
	TemplateDialogDone: {
		"en": "Thank you, I have everything I need. Our team will confirm with you shortly.",
		"ms": "Terima kasih, maklumat anda sudah lengkap. Staf kami akan mengesahkan sebentar lagi.",
		"zh": "谢谢，信息已齐全。工作人员会尽快与您确认。",
	},
}

// Template resolves a canned message: catalog override first, then the
// built-in text in lang, then English.
func Template(cat IntentCatalog, name, lang string) string {
	if cat != nil {
		if s := cat.Template(name, lang); s != "" {
			return s
		}
	}
	byLang := builtinTemplates[name]
	if s, ok := byLang[lang]; ok {
		return s
	}
	return byLang["en"]
}

// Templatef is Template with fmt.Sprintf arguments.
func Templatef(cat IntentCatalog, name, lang string, args ...any) string {
	return fmt.Sprintf(Template(cat, name, lang), args...)
}
