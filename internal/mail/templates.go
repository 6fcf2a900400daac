package mail

import "fmt"

func Verification(to, firstName, link string) Message {
	return Message{
		To:      to,
		Subject: "Confirmez votre adresse email",
		Body: fmt.Sprintf("Bonjour %s,\n\nMerci pour votre inscription. Confirmez votre adresse en ouvrant ce lien :\n\n%s\n\nCe lien expire dans 24 heures.\n",
			firstName, link),
	}
}

func PasswordReset(to, firstName, link string) Message {
	return Message{
		To:      to,
		Subject: "Réinitialisation de votre mot de passe",
		Body: fmt.Sprintf("Bonjour %s,\n\nPour choisir un nouveau mot de passe, ouvrez ce lien :\n\n%s\n\nCe lien expire dans une heure. Si vous n'êtes pas à l'origine de cette demande, ignorez ce message.\n",
			firstName, link),
	}
}

func ContactConfirmation(to, name, subject string) Message {
	return Message{
		To:      to,
		Subject: "Nous avons bien reçu votre message",
		Body: fmt.Sprintf("Bonjour %s,\n\nVotre message « %s » a bien été reçu. Notre équipe vous répondra rapidement.\n",
			name, subject),
	}
}

func ContactNotification(to, name, email, subject, message string) Message {
	return Message{
		To:      to,
		ReplyTo: email,
		Subject: "Nouveau message de contact : " + subject,
		Body:    fmt.Sprintf("De : %s <%s>\n\n%s\n", name, email, message),
	}
}

func ContactReply(to, subject, message string) Message {
	return Message{To: to, Subject: subject, Body: message}
}

func PaymentReceipt(to, planName string, amount float64, currency string) Message {
	return Message{
		To:      to,
		Subject: "Confirmation de votre paiement",
		Body: fmt.Sprintf("Bonjour,\n\nNous confirmons la réception de votre paiement de %.2f %s pour l'offre %s. Votre abonnement est actif.\n",
			amount, currency, planName),
	}
}

func SmtpTest(to string) Message {
	return Message{
		To:      to,
		Subject: "Test de configuration SMTP",
		Body:    "Ce message confirme que la configuration SMTP fonctionne.\n",
	}
}
